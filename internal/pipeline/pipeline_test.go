package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/crossfire-map/internal/adapter/fogocruzado"
	"github.com/couchcryptid/crossfire-map/internal/domain"
	"github.com/couchcryptid/crossfire-map/internal/observability"
	"github.com/couchcryptid/crossfire-map/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockAPI struct {
	loginErr   error
	statesErr  error
	regions    []domain.Region
	report     domain.FetchReport
	calls      []string
	requestIDs []string
}

func (m *mockAPI) Login(_ context.Context, _, _ string) (string, error) {
	m.calls = append(m.calls, "login")
	if m.loginErr != nil {
		return "", m.loginErr
	}
	return "token", nil
}

func (m *mockAPI) States(_ context.Context, _ string) ([]domain.Region, error) {
	m.calls = append(m.calls, "states")
	return m.regions, m.statesErr
}

func (m *mockAPI) Occurrences(_ context.Context, _ string, ids []string) domain.FetchReport {
	m.calls = append(m.calls, "occurrences")
	m.requestIDs = ids
	return m.report
}

type staticBoundaries struct {
	boundaries []domain.Boundary
	err        error
	calls      int
}

func (s *staticBoundaries) Boundaries(_ context.Context) ([]domain.Boundary, error) {
	s.calls++
	return s.boundaries, s.err
}

type recordingLoader struct {
	rows    []domain.FlatIncident
	regions []domain.RegionCount
	err     error
}

func (l *recordingLoader) LoadRows(_ context.Context, rows []domain.FlatIncident) error {
	l.rows = rows
	return l.err
}

func (l *recordingLoader) LoadCounts(_ context.Context, regions []domain.RegionCount) error {
	l.regions = regions
	return l.err
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func square(x, y float64) [][]domain.Point {
	return [][]domain.Point{{{X: x, Y: y}, {X: x, Y: y + 1}, {X: x + 1, Y: y + 1}, {X: x + 1, Y: y}, {X: x, Y: y}}}
}

func brazilBoundaries() *staticBoundaries {
	return &staticBoundaries{boundaries: []domain.Boundary{
		{Name: "Bahia", Rings: square(-42, -13)},
		{Name: "Pernambuco", Rings: square(-38, -9)},
		{Name: "Rio de Janeiro", Rings: square(-43, -23)},
	}}
}

func settings() pipeline.Settings {
	return pipeline.Settings{
		Email:         "analista@example.org",
		Password:      "ab123def",
		VictimPolicy:  domain.VictimLast,
		MatchStrategy: domain.MatchExactFirst,
	}
}

func incident(id, state string) domain.Incident {
	return domain.Incident{
		ID:    id,
		State: domain.NamedRef{ID: "st-" + state, Name: state},
		City:  domain.NamedRef{ID: "ct", Name: "Cidade"},
	}
}

const occurrencesRegion1 = `{"data":[
	{"id":"o1","documentNumber":1,"latitude":"-12.9","longitude":"-38.5","state":{"id":"st-1","name":"Bahia"},"city":{"id":"c1","name":"Salvador"},"neighborhood":null,"victims":[]},
	{"id":"o2","documentNumber":2,"latitude":"-12.9","longitude":"-38.5","state":{"id":"st-1","name":"Bahia"},"city":{"id":"c1","name":"Salvador"},"neighborhood":{"id":"n1","name":"Pituba"},"victims":[{"id":"v1","type":"People","age":19,"genre":{"name":"Homem cis"}}]},
	{"id":"o3","documentNumber":3,"latitude":"-12.9","longitude":"-38.5","state":{"id":"st-1","name":"Bahia"},"city":{"id":"c1","name":"Salvador"},"neighborhood":null,"victims":[{"id":"v2","type":"People","age":null,"genre":null},{"id":"v3","type":"Animal","age":null,"genre":null}]}
]}`

// newAPIServer fakes the Fogo Cruzado API: two states, the second of which
// fails its occurrence request.
func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"accessToken":"tok"}}`))
	})
	mux.HandleFunc("GET /states", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"st-1","name":"Bahia"},{"id":"st-2","name":"Pernambuco"}]}`))
	})
	mux.HandleFunc("GET /occurrences", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("idState") == "st-1" {
			_, _ = w.Write([]byte(occurrencesRegion1))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// --- tests ---

func TestPipeline_Run_EndToEnd_SkipsFailedRegion(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, time.March, 3, 12, 0, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() { domain.SetClock(nil) })

	srv := newAPIServer(t)
	metrics := observability.NewMetricsForTesting()
	client := fogocruzado.NewClient(srv.URL, 5*time.Second, discardLogger(), metrics)
	boundaries := brazilBoundaries()

	p := pipeline.New(client, boundaries, nil, settings(), discardLogger(), metrics)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Rows, 3)
	assert.Equal(t, 2, res.Summary.Regions)
	assert.Equal(t, 3, res.Summary.Incidents)
	require.Len(t, res.Summary.RegionOutcomes, 2)
	assert.Equal(t, domain.FetchOK, res.Summary.RegionOutcomes[0].Status)
	assert.Equal(t, domain.FetchSkipped, res.Summary.RegionOutcomes[1].Status)
	assert.Equal(t, http.StatusInternalServerError, res.Summary.RegionOutcomes[1].StatusCode)

	// Last-victim policy: o3 keeps v3 and counts both victims.
	assert.Equal(t, 2, res.Rows[2].VictimsCount)
	assert.Equal(t, "v3", *res.Rows[2].VictimID)
	assert.Nil(t, res.Rows[0].NeighborhoodID)

	assert.Equal(t, []domain.StateCount{{StateName: "Bahia", Count: 3}}, res.Summary.Counts)
	assert.Equal(t, 3, res.Summary.MaxCount)
	assert.True(t, res.Summary.Rendered)
	assert.Equal(t, fakeClock.Now(), res.Summary.StartedAt)
	assert.Equal(t, "last", res.Summary.VictimPolicy)
	assert.Equal(t, "exact-first", res.Summary.MatchStrategy)

	require.NotNil(t, res.SVG)
	assert.Contains(t, string(res.SVG), "<title>Bahia: 3</title>")
	assert.Contains(t, string(res.SVG), "<title>Pernambuco: 0</title>")

	require.NoError(t, p.CheckReadiness(context.Background()))
	svg, ok := p.Map()
	require.True(t, ok)
	assert.Equal(t, res.SVG, svg)
}

func TestPipeline_Run_AuthenticationErrorStopsEverything(t *testing.T) {
	api := &mockAPI{loginErr: &domain.AuthenticationError{StatusCode: http.StatusUnauthorized}}
	boundaries := brazilBoundaries()

	p := pipeline.New(api, boundaries, nil, settings(), discardLogger(), observability.NewMetricsForTesting())

	_, err := p.Run(context.Background())

	var authErr *domain.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Equal(t, []string{"login"}, api.calls)
	assert.Zero(t, boundaries.calls)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_AuthenticationErrorOverHTTP(t *testing.T) {
	var otherCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		otherCalls++
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	metrics := observability.NewMetricsForTesting()
	client := fogocruzado.NewClient(srv.URL, 5*time.Second, discardLogger(), metrics)
	p := pipeline.New(client, brazilBoundaries(), nil, settings(), discardLogger(), metrics)

	_, err := p.Run(context.Background())

	var authErr *domain.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Zero(t, otherCalls)
}

func TestPipeline_Run_StatesErrorIsFatal(t *testing.T) {
	api := &mockAPI{statesErr: &domain.DataFetchError{Resource: "states", StatusCode: http.StatusBadGateway}}

	p := pipeline.New(api, brazilBoundaries(), nil, settings(), discardLogger(), observability.NewMetricsForTesting())

	_, err := p.Run(context.Background())

	var fetchErr *domain.DataFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, []string{"login", "states"}, api.calls)
}

func TestPipeline_Run_NoIncidents(t *testing.T) {
	api := &mockAPI{
		regions: []domain.Region{{ID: "st-1", Name: "Bahia"}},
		report: domain.FetchReport{Outcomes: []domain.RegionOutcome{
			{RegionID: "st-1", Status: domain.FetchSkipped, StatusCode: http.StatusNotFound},
		}},
	}
	boundaries := brazilBoundaries()

	p := pipeline.New(api, boundaries, nil, settings(), discardLogger(), observability.NewMetricsForTesting())

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res.SVG)
	assert.False(t, res.Summary.Rendered)
	assert.Zero(t, boundaries.calls)

	summary, ok := p.Summary()
	require.True(t, ok)
	assert.Len(t, summary.RegionOutcomes, 1)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_PassesRegionIDsInOrder(t *testing.T) {
	api := &mockAPI{
		regions: []domain.Region{{ID: "a"}, {ID: "b"}, {ID: "c"}},
	}

	p := pipeline.New(api, brazilBoundaries(), nil, settings(), discardLogger(), observability.NewMetricsForTesting())
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, api.requestIDs)
}

func TestPipeline_Run_UnmatchedBoundaryGetsZeroAndUnmappedReported(t *testing.T) {
	api := &mockAPI{
		regions: []domain.Region{{ID: "st-ba"}},
		report: domain.FetchReport{Incidents: []domain.Incident{
			incident("1", "Bahia"),
			incident("2", "Bahia"),
			incident("3", "Atlântida"),
		}},
	}

	p := pipeline.New(api, brazilBoundaries(), nil, settings(), discardLogger(), observability.NewMetricsForTesting())

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Regions, 3)
	counts := map[string]int{}
	for _, r := range res.Regions {
		counts[r.Boundary.Name] = r.Count
	}
	assert.Equal(t, map[string]int{"Bahia": 2, "Pernambuco": 0, "Rio de Janeiro": 0}, counts)
	assert.Equal(t, []string{"Atlântida"}, res.Summary.Unmapped)
}

func TestPipeline_Run_MatchStrategyFromSettings(t *testing.T) {
	api := &mockAPI{
		regions: []domain.Region{{ID: "st-pa"}},
		report:  domain.FetchReport{Incidents: []domain.Incident{incident("1", "Pará")}},
	}
	boundaries := &staticBoundaries{boundaries: []domain.Boundary{
		{Name: "Pará", Rings: square(-52, -4)},
		{Name: "Paraíba", Rings: square(-36, -7)},
		{Name: "Paraná", Rings: square(-51, -25)},
	}}

	s := settings()
	s.MatchStrategy = domain.MatchLastSubstring
	p := pipeline.New(api, boundaries, nil, s, discardLogger(), observability.NewMetricsForTesting())

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Paraná", res.Summary.Mapping["PARA"])
	assert.Len(t, res.Summary.Ambiguous["Pará"], 3)

	s.MatchStrategy = domain.MatchExactFirst
	p = pipeline.New(api, boundaries, nil, s, discardLogger(), observability.NewMetricsForTesting())

	res, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Pará", res.Summary.Mapping["PARA"])
}

func TestPipeline_Run_BoundaryErrorIsFatal(t *testing.T) {
	api := &mockAPI{
		regions: []domain.Region{{ID: "st-ba"}},
		report:  domain.FetchReport{Incidents: []domain.Incident{incident("1", "Bahia")}},
	}
	boundaries := &staticBoundaries{err: errors.New("open shapefile: no such file")}

	p := pipeline.New(api, boundaries, nil, settings(), discardLogger(), observability.NewMetricsForTesting())

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "load boundaries"))
}

func TestPipeline_Run_PublishesToLoader(t *testing.T) {
	api := &mockAPI{
		regions: []domain.Region{{ID: "st-ba"}},
		report:  domain.FetchReport{Incidents: []domain.Incident{incident("1", "Bahia")}},
	}
	loader := &recordingLoader{}

	p := pipeline.New(api, brazilBoundaries(), loader, settings(), discardLogger(), observability.NewMetricsForTesting())

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, loader.rows, 1)
	assert.Len(t, loader.regions, 3)
}

func TestPipeline_Run_LoaderErrorDoesNotFailRun(t *testing.T) {
	api := &mockAPI{
		regions: []domain.Region{{ID: "st-ba"}},
		report:  domain.FetchReport{Incidents: []domain.Incident{incident("1", "Bahia")}},
	}
	loader := &recordingLoader{err: errors.New("broker unavailable")}

	p := pipeline.New(api, brazilBoundaries(), loader, settings(), discardLogger(), observability.NewMetricsForTesting())

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Summary.Rendered)
}

func TestPipeline_Run_ExpandPolicyCountsIncidents(t *testing.T) {
	multi := incident("ba-1", "Bahia")
	multi.Victims = []domain.Victim{{ID: "v1"}, {ID: "v2"}, {ID: "v3"}}
	api := &mockAPI{
		regions: []domain.Region{{ID: "st-ba"}},
		report:  domain.FetchReport{Incidents: []domain.Incident{multi}},
	}
	loader := &recordingLoader{}

	s := settings()
	s.VictimPolicy = domain.VictimExpand
	p := pipeline.New(api, brazilBoundaries(), loader, s, discardLogger(), observability.NewMetricsForTesting())

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Rows, 3)
	assert.Equal(t, 1, res.Summary.Incidents)
	assert.Equal(t, []domain.StateCount{{StateName: "Bahia", Count: 1}}, res.Summary.Counts)
	assert.Equal(t, 1, res.Summary.MaxCount)
	assert.Equal(t, 1, res.Regions[0].Count)
	assert.Contains(t, string(res.SVG), "<title>Bahia: 1</title>")
	require.Len(t, loader.regions, 3)
	assert.Equal(t, 1, loader.regions[0].Count)
}
