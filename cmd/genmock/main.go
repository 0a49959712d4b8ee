// Command genmock generates deterministic fixtures for local runs and tests:
// a demo boundary shapefile of the 27 Brazilian federative units, the matching
// /states and /occurrences API responses, and the flat rows the pipeline
// derives from them. It uses the domain package so the flat rows match real
// pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock -out-dir data/mock -seed 42
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/couchcryptid/crossfire-map/internal/adapter/shapefile"
	"github.com/couchcryptid/crossfire-map/internal/domain"
	"github.com/jonas-p/go-shp"
	"github.com/jonboulle/clockwork"
)

var baseDate = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

// uf is a federative unit with the approximate lon/lat of its centroid.
type uf struct {
	sigla    string
	name     string
	apiName  string // spelling used in the API fixture; defaults to name
	lon, lat float64
}

var ufs = []uf{
	{sigla: "AC", name: "Acre", lon: -70.5, lat: -9.0},
	{sigla: "AL", name: "Alagoas", lon: -36.6, lat: -9.6},
	{sigla: "AP", name: "Amapá", lon: -51.8, lat: 1.4},
	{sigla: "AM", name: "Amazonas", lon: -64.7, lat: -4.2},
	{sigla: "BA", name: "Bahia", lon: -41.7, lat: -12.5},
	{sigla: "CE", name: "Ceará", lon: -39.3, lat: -5.2},
	{sigla: "DF", name: "Distrito Federal", lon: -47.8, lat: -15.8},
	{sigla: "ES", name: "Espírito Santo", lon: -40.5, lat: -19.6},
	{sigla: "GO", name: "Goiás", lon: -49.6, lat: -15.9},
	{sigla: "MA", name: "Maranhão", lon: -45.3, lat: -5.0},
	{sigla: "MT", name: "Mato Grosso", lon: -55.9, lat: -12.6},
	{sigla: "MS", name: "Mato Grosso do Sul", lon: -54.6, lat: -20.5},
	{sigla: "MG", name: "Minas Gerais", lon: -44.6, lat: -18.5},
	{sigla: "PA", name: "Pará", lon: -52.3, lat: -3.8},
	{sigla: "PB", name: "Paraíba", lon: -36.8, lat: -7.1},
	{sigla: "PR", name: "Paraná", lon: -51.6, lat: -24.6},
	{sigla: "PE", name: "Pernambuco", lon: -37.9, lat: -8.3},
	{sigla: "PI", name: "Piauí", lon: -42.7, lat: -7.7},
	{sigla: "RJ", name: "Rio de Janeiro", lon: -42.7, lat: -22.3},
	{sigla: "RN", name: "Rio Grande do Norte", lon: -36.5, lat: -5.8},
	{sigla: "RS", name: "Rio Grande do Sul", lon: -53.2, lat: -29.7},
	{sigla: "RO", name: "Rondônia", lon: -62.8, lat: -10.9},
	{sigla: "RR", name: "Roraima", lon: -61.4, lat: 2.1},
	{sigla: "SC", name: "Santa Catarina", lon: -50.5, lat: -27.2},
	{sigla: "SP", name: "São Paulo", apiName: "Sao Paulo", lon: -48.5, lat: -22.2},
	{sigla: "SE", name: "Sergipe", lon: -37.4, lat: -10.6},
	{sigla: "TO", name: "Tocantins", lon: -48.3, lat: -10.2},
}

var victimTypes = []string{"People", "Animal"}

var genres = []string{"Homem cis", "Mulher cis", "Homem trans", "Mulher trans", "Não binário"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "", "directory to write fixtures into")
	seed := flag.Uint64("seed", 42, "random seed")
	perState := flag.Int("max-per-state", 12, "maximum occurrences generated per state")
	flag.Parse()

	if *outDir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out-dir")
	}

	// Set a fixed clock for reproducible occurrence dates.
	domain.SetClock(clockwork.NewFakeClockAt(baseDate))
	defer domain.SetClock(nil)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	shpPath := filepath.Join(*outDir, "BR_UF_demo.shp")
	if err := writeShapefile(shpPath); err != nil {
		return fmt.Errorf("writing shapefile: %w", err)
	}
	log.Printf("wrote boundary shapefile: %s (%d regions)", shpPath, len(ufs))

	regions := make([]domain.Region, len(ufs))
	for i, u := range ufs {
		regions[i] = domain.Region{ID: "st-" + u.sigla, Name: apiName(u)}
	}
	if err := writeJSON(filepath.Join(*outDir, "states.json"), envelope{Data: regions}); err != nil {
		return fmt.Errorf("writing states fixture: %w", err)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed))
	incidents := generateIncidents(rng, *perState)
	if err := writeJSON(filepath.Join(*outDir, "occurrences.json"), envelope{Data: incidents}); err != nil {
		return fmt.Errorf("writing occurrences fixture: %w", err)
	}
	log.Printf("wrote occurrences fixture: %d incidents", len(incidents))

	rows := domain.Flatten(incidents, domain.VictimLast)
	if err := writeJSON(filepath.Join(*outDir, "rows.json"), rows); err != nil {
		return fmt.Errorf("writing rows fixture: %w", err)
	}
	log.Printf("wrote rows fixture: %d rows", len(rows))

	printStats(incidents, rows)
	return nil
}

type envelope struct {
	Data any `json:"data"`
}

func apiName(u uf) string {
	if u.apiName != "" {
		return u.apiName
	}
	return u.name
}

// writeShapefile writes one square polygon per UF around its centroid with
// SIGLA_UF and NM_UF attributes, the layout of the IBGE state dataset.
func writeShapefile(path string) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return err
	}
	err = writeUFs(w)
	w.Close()
	if err != nil {
		return err
	}
	return shapefile.FixAttributeTable(path)
}

func writeUFs(w *shp.Writer) error {
	if err := w.SetFields([]shp.Field{
		shp.StringField("SIGLA_UF", 2),
		shp.StringField("NM_UF", 50),
	}); err != nil {
		return err
	}

	const half = 1.2
	for i, u := range ufs {
		ring := []shp.Point{
			{X: u.lon - half, Y: u.lat - half},
			{X: u.lon - half, Y: u.lat + half},
			{X: u.lon + half, Y: u.lat + half},
			{X: u.lon + half, Y: u.lat - half},
			{X: u.lon - half, Y: u.lat - half},
		}
		line := shp.NewPolyLine([][]shp.Point{ring})
		poly := shp.Polygon(*line)
		w.Write(&poly)
		if err := w.WriteAttribute(i, 0, u.sigla); err != nil {
			return err
		}
		if err := w.WriteAttribute(i, 1, u.name); err != nil {
			return err
		}
	}
	return nil
}

func generateIncidents(rng *rand.Rand, maxPerState int) []domain.Incident {
	var incidents []domain.Incident //nolint:prealloc // size depends on the random draw
	seq := 0
	for _, u := range ufs {
		n := rng.IntN(maxPerState + 1)
		state := domain.NamedRef{ID: "st-" + u.sigla, Name: apiName(u)}
		city := domain.NamedRef{ID: "ct-" + u.sigla, Name: "Capital " + u.sigla}

		for range n {
			seq++
			when := domain.Now().Add(time.Duration(rng.IntN(30*24)) * time.Hour)
			inc := domain.Incident{
				ID:             fmt.Sprintf("occ-%05d", seq),
				DocumentNumber: int64(seq),
				Address:        fmt.Sprintf("Rua %d, %s", rng.IntN(900)+1, city.Name),
				Latitude:       coordinate(u.lat + rng.Float64() - 0.5),
				Longitude:      coordinate(u.lon + rng.Float64() - 0.5),
				Date:           when.Format(time.RFC3339),
				PoliceAction:   rng.IntN(2) == 0,
				AgentPresence:  rng.IntN(4) == 0,
				State:          state,
				City:           city,
				Victims:        []domain.Victim{},
			}
			if rng.IntN(10) >= 3 {
				inc.Neighborhood = &domain.NamedRef{ID: fmt.Sprintf("nb-%s-%d", u.sigla, rng.IntN(20)), Name: fmt.Sprintf("Bairro %d", rng.IntN(20))}
			}
			for v := range rng.IntN(4) {
				inc.Victims = append(inc.Victims, victim(rng, fmt.Sprintf("vic-%05d-%d", seq, v)))
			}
			incidents = append(incidents, inc)
		}
	}
	return incidents
}

func victim(rng *rand.Rand, id string) domain.Victim {
	v := domain.Victim{ID: id, Type: victimTypes[rng.IntN(len(victimTypes))]}
	if v.Type == "People" {
		if rng.IntN(5) > 0 {
			age := 12 + rng.IntN(60)
			v.Age = &age
		}
		v.Genre = &domain.Genre{Name: genres[rng.IntN(len(genres))]}
	}
	return v
}

func coordinate(v float64) domain.Coordinate {
	return domain.Coordinate(strconv.FormatFloat(v, 'f', 6, 64))
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

type stateCount struct {
	state string
	count int
}

func printStats(incidents []domain.Incident, rows []domain.FlatIncident) {
	var victims, noVictims, noNeighborhood int
	for i := range incidents {
		victims += len(incidents[i].Victims)
		if len(incidents[i].Victims) == 0 {
			noVictims++
		}
		if incidents[i].Neighborhood == nil {
			noNeighborhood++
		}
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Incidents: %d\n", len(incidents))
	fmt.Printf("Rows (last victim): %d\n", len(rows))
	fmt.Printf("Rows (expand): %d\n", len(domain.Flatten(incidents, domain.VictimExpand)))
	fmt.Printf("Victims: %d, incidents without victims: %d\n", victims, noVictims)
	fmt.Printf("Without neighborhood: %d\n", noNeighborhood)

	counts := domain.CountByState(rows)
	sc := make([]stateCount, 0, len(counts))
	for _, c := range counts {
		sc = append(sc, stateCount{c.StateName, c.Count})
	}
	sort.Slice(sc, func(i, j int) bool { return sc[i].count > sc[j].count })
	fmt.Printf("States (%d): ", len(sc))
	for _, s := range sc {
		fmt.Printf("%s=%d ", s.state, s.count)
	}
	fmt.Println()
}
