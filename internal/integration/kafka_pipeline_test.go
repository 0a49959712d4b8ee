//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/crossfire-map/internal/adapter/fogocruzado"
	"github.com/couchcryptid/crossfire-map/internal/adapter/kafka"
	"github.com/couchcryptid/crossfire-map/internal/adapter/shapefile"
	"github.com/couchcryptid/crossfire-map/internal/config"
	"github.com/couchcryptid/crossfire-map/internal/domain"
	"github.com/couchcryptid/crossfire-map/internal/observability"
	"github.com/couchcryptid/crossfire-map/internal/pipeline"
	"github.com/jonas-p/go-shp"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const (
	testRowsTopic   = "test-occurrences"
	testCountsTopic = "test-state-counts"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("crossfire-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// readN reads n messages from topic, failing the test on timeout.
func readN(ctx context.Context, t *testing.T, broker, topic string, n int) []kafkago.Message {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-%s-%d", topic, time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msgs := make([]kafkago.Message, 0, n)
	for len(msgs) < n {
		msg, err := consumer.ReadMessage(readCtx)
		require.NoError(t, err, "read from %s", topic)
		msgs = append(msgs, msg)
	}
	return msgs
}

func headers(msg kafkago.Message) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

// writeBoundaries writes a three-state polygon shapefile.
func writeBoundaries(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "BR_UF_IT.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NM_UF", 50)}))

	for i, name := range []string{"Bahia", "Pernambuco", "Rio de Janeiro"} {
		x, y := -45+float64(i)*3, -20+float64(i)*3
		line := shp.NewPolyLine([][]shp.Point{{
			{X: x, Y: y}, {X: x, Y: y + 2}, {X: x + 2, Y: y + 2}, {X: x + 2, Y: y}, {X: x, Y: y},
		}})
		poly := shp.Polygon(*line)
		w.Write(&poly)
		require.NoError(t, w.WriteAttribute(i, 0, name))
	}
	w.Close()
	require.NoError(t, shapefile.FixAttributeTable(path))
	return path
}

// newAPI fakes the Fogo Cruzado API: Bahia has two occurrences, Pernambuco
// one, and Rio de Janeiro fails with 503.
func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"accessToken":"it-token"}}`))
	})
	mux.HandleFunc("GET /states", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"st-ba","name":"Bahia"},{"id":"st-pe","name":"Pernambuco"},{"id":"st-rj","name":"Rio de Janeiro"}]}`))
	})
	mux.HandleFunc("GET /occurrences", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("idState") {
		case "st-ba":
			_, _ = w.Write([]byte(`{"data":[
				{"id":"ba-1","state":{"id":"st-ba","name":"Bahia"},"city":{"id":"c1","name":"Salvador"},"neighborhood":null,"victims":[{"id":"v1","type":"People"},{"id":"v2","type":"People"}]},
				{"id":"ba-2","state":{"id":"st-ba","name":"Bahia"},"city":{"id":"c1","name":"Salvador"},"neighborhood":null,"victims":[]}
			]}`))
		case "st-pe":
			_, _ = w.Write([]byte(`{"data":[
				{"id":"pe-1","state":{"id":"st-pe","name":"Pernambuco"},"city":{"id":"c2","name":"Recife"},"neighborhood":{"id":"n1","name":"Boa Viagem"},"victims":[]}
			]}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// TestPipelinePublishesToKafka runs the full pipeline against a fake API and
// a real broker and verifies both topics.
func TestPipelinePublishesToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testRowsTopic)
	createTopic(t, broker, testCountsTopic)

	cfg := &config.Config{
		KafkaBrokers:     []string{broker},
		KafkaRowsTopic:   testRowsTopic,
		KafkaCountsTopic: testCountsTopic,
		VictimPolicy:     domain.VictimExpand,
	}

	api := newAPI(t)
	metrics := observability.NewMetricsForTesting()
	client := fogocruzado.NewClient(api.URL, 10*time.Second, discardLogger(), metrics)
	source := shapefile.NewSource(writeBoundaries(t), "NM_UF")

	writer := kafka.NewWriter(cfg, discardLogger(), metrics)
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(client, source, writer, pipeline.Settings{
		Email:        "it@example.org",
		Password:     "secret",
		VictimPolicy: domain.VictimExpand,
	}, discardLogger(), metrics)

	res, err := p.Run(ctx)
	require.NoError(t, err)
	require.Len(t, res.Rows, 4, "ba-1 expands to two rows")
	assert.Equal(t, []domain.StateCount{{StateName: "Bahia", Count: 2}, {StateName: "Pernambuco", Count: 1}}, res.Summary.Counts)
	assert.Len(t, res.Summary.RegionOutcomes, 3)

	rows := readN(ctx, t, broker, testRowsTopic, 4)
	keys := make([]string, len(rows))
	for i, msg := range rows {
		keys[i] = string(msg.Key)
		h := headers(msg)
		assert.Equal(t, "expand", h["victim_policy"])
		assert.NotEmpty(t, h["state_name"])

		var row domain.FlatIncident
		require.NoError(t, json.Unmarshal(msg.Value, &row))
		assert.Equal(t, h["state_name"], row.StateName)
	}
	assert.Equal(t, []string{"ba-1", "ba-1", "ba-2", "pe-1"}, keys)

	counts := readN(ctx, t, broker, testCountsTopic, 3)
	got := map[string]int{}
	for _, msg := range counts {
		var payload struct {
			Boundary string `json:"boundary"`
			Count    int    `json:"count"`
		}
		require.NoError(t, json.Unmarshal(msg.Value, &payload))
		assert.Equal(t, payload.Boundary, string(msg.Key))
		got[payload.Boundary] = payload.Count
	}
	assert.Equal(t, map[string]int{"Bahia": 2, "Pernambuco": 1, "Rio de Janeiro": 0}, got)
}
