package satellite

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

var square = orb.Polygon{{{-75, 4}, {-74.9, 4}, {-74.9, 4.1}, {-75, 4.1}, {-75, 4}}}

type fakeEngine struct {
	result  string
	err     error
	tileErr error
	exprs   []map[string]any
}

func (f *fakeEngine) Compute(_ context.Context, expr map[string]any) (json.RawMessage, error) {
	f.exprs = append(f.exprs, expr)
	return json.RawMessage(f.result), f.err
}

func (f *fakeEngine) TileURL(_ context.Context, _ map[string]any, band string, _ properties.VisParams) (string, error) {
	if f.tileErr != nil {
		return "", f.tileErr
	}
	return "https://tiles.example/" + band + "/{z}/{x}/{y}", nil
}

func TestBiomassStats(t *testing.T) {
	stats := BiomassStats(100, 50)
	assert.Equal(t, []Stat{
		{Name: StatMeanBiomass, Value: 100},
		{Name: StatTotalBiomass, Value: 5000},
		{Name: StatCarbon, Value: 2500},
		{Name: StatCO2, Value: 9175},
	}, stats)
}

func TestFetchBiomass(t *testing.T) {
	engine := &fakeEngine{result: `{"agbd": 87.456}`}
	result, err := NewFetcher(engine).FetchBiomass(context.Background(), square)
	require.NoError(t, err)

	mean, ok := result.Stat(StatMeanBiomass)
	require.True(t, ok)
	assert.Equal(t, 87.46, mean)
	total, _ := result.Stat(StatTotalBiomass)
	assert.Greater(t, total, 0.0)
	assert.Equal(t, "https://tiles.example/agbd/{z}/{x}/{y}", result.TileURL)
	require.NotNil(t, result.Vis)
	assert.Equal(t, 150.0, result.Vis.Max)

	encoded, err := json.Marshal(engine.exprs[0])
	require.NoError(t, err)
	assert.Contains(t, string(encoded), "Image.reduceRegion")
	assert.Contains(t, string(encoded), properties.BiomassCollection)
	assert.Contains(t, string(encoded), `"bestEffort":{"constantValue":true}`)
}

func TestFetchCanopyNullReductionIsZero(t *testing.T) {
	engine := &fakeEngine{result: `{"height": null}`}
	result, err := NewFetcher(engine).FetchCanopy(context.Background(), square)
	require.NoError(t, err)
	assert.Equal(t, []Stat{{Name: StatMeanCanopy, Value: 0}}, result.Stats)
}

func TestFetchTileFailureKeepsStats(t *testing.T) {
	engine := &fakeEngine{result: `{"height": 12.3}`, tileErr: errors.New("quota")}
	result, err := NewFetcher(engine).FetchCanopy(context.Background(), square)
	require.NoError(t, err)
	assert.Empty(t, result.TileURL)
	assert.False(t, result.Empty())
}

func TestFetchErrors(t *testing.T) {
	engine := &fakeEngine{err: ErrUnavailable}
	result, err := NewFetcher(engine).FetchBiomass(context.Background(), square)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, result.Empty())

	_, err = NewFetcher(engine).FetchCanopy(context.Background(), orb.LineString{{0, 0}, {1, 1}})
	assert.Error(t, err)
}

func TestSessionFallsBackOnce(t *testing.T) {
	primaryCalls, fallbackCalls := 0, 0
	session := NewSession(
		func(context.Context) (oauth2.TokenSource, error) {
			primaryCalls++
			return nil, errors.New("no default credentials")
		},
		func(context.Context) (oauth2.TokenSource, error) {
			fallbackCalls++
			return nil, errors.New("user cancelled")
		},
	)

	assert.ErrorIs(t, session.Init(context.Background()), ErrUnavailable)
	_, err := session.HTTPClient(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, primaryCalls)
	assert.Equal(t, 1, fallbackCalls)
}

func TestSessionInitSurvivesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	session := NewSession(
		func(context.Context) (oauth2.TokenSource, error) {
			return nil, errors.New("no default credentials")
		},
		func(ctx context.Context) (oauth2.TokenSource, error) {
			// the caller gives up while the user is still pasting the code
			cancel()
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token"}), nil
		},
	)

	require.NoError(t, session.Init(ctx))
	client, err := session.HTTPClient(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestInteractiveCredentialsWithoutPrompter(t *testing.T) {
	_, err := InteractiveCredentials("id", "secret", nil)(context.Background())
	assert.Error(t, err)
}

func staticSession() *Session {
	return NewSession(func(context.Context) (oauth2.TokenSource, error) {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token"}), nil
	}, nil)
}

func TestRESTEngine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		switch r.URL.Path {
		case "/v1/projects/demo/value:compute":
			assert.Contains(t, string(body), `"expression"`)
			_, _ = w.Write([]byte(`{"result":{"agbd":42.5}}`))
		case "/v1/projects/demo/maps":
			assert.True(t, strings.Contains(string(body), `"bandIds":["agbd"]`))
			_, _ = w.Write([]byte(`{"name":"projects/demo/maps/abc123"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	engine := NewRESTEngine(server.URL, "demo", staticSession())
	result, err := NewFetcher(engine).FetchBiomass(context.Background(), square)
	require.NoError(t, err)

	mean, _ := result.Stat(StatMeanBiomass)
	assert.Equal(t, 42.5, mean)
	assert.Equal(t, server.URL+"/v1/projects/demo/maps/abc123/tiles/{z}/{x}/{y}", result.TileURL)
}

func TestRESTEngineStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("permission denied"))
	}))
	defer server.Close()

	_, err := NewRESTEngine(server.URL, "demo", staticSession()).Compute(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
