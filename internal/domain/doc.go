// Package domain models Fogo Cruzado shooting occurrence data and the
// reshaping needed to draw it on an IBGE state boundary map.
//
// # Data Source
//
// Occurrences come from the Fogo Cruzado v2 API
// (https://api-service.fogocruzado.org.br/api/v2). Each occurrence is a nested
// JSON object carrying its state, city, optional neighborhood and a list of
// victims. Boundaries come from the IBGE state shapefile (BR_UF_2023), whose
// NM_UF attribute holds the official state name.
//
// # Flattening
//
// An occurrence becomes one row per [VictimPolicy]. The default policy,
// [VictimLast], keeps the columns of the last victim in the list only, so for
// occurrences with several victims the earlier victims' details are lost and
// only VictimsCount reflects them. [VictimFirst] keeps the first victim and
// [VictimExpand] emits one row per victim.
//
// Absent values (no neighborhood, no victims, no genre, unknown age) are nil
// pointers and serialize as JSON null.
//
// # Name Reconciliation
//
// The API spells state names in mixed case with accents ("São Paulo") while
// NM_UF may differ in capitalization, accents and wording. Both sides are
// normalized with [NormalizeName] and matched by substring. A short name can
// be contained in several boundary names ("PARA" in "PARAIBA" and "PARANA"),
// so the tie-break is an explicit [MatchStrategy]:
//
//	MatchExactFirst     exact normalized match, else shortest candidate
//	MatchLastSubstring  last candidate in iteration order wins
//
// MatchExactFirst is the default. The historical last-write-wins mapping,
// where "Pará" lands on "Paraná", is only reproduced by MatchLastSubstring.
//
// Unmatched names are reported, not raised, and contribute a zero count.
// State counts are per incident, so they do not change with the victim policy.
package domain
