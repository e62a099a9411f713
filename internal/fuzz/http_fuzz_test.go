package fuzz

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Traviscatt/picknroll-sub000/internal/auth"
	"github.com/Traviscatt/picknroll-sub000/internal/dal"
	"github.com/Traviscatt/picknroll-sub000/internal/handlers"
	"github.com/Traviscatt/picknroll-sub000/internal/logger"
	"github.com/Traviscatt/picknroll-sub000/internal/models"
	"github.com/Traviscatt/picknroll-sub000/internal/pubsub"
	"github.com/Traviscatt/picknroll-sub000/internal/recalc"
	"github.com/Traviscatt/picknroll-sub000/internal/scoring"
)

const adminKey = "fuzz-key"

func init() {
	// Initialize logger for tests
	logger.Init()
}

func newMux() (*http.ServeMux, *dal.MemoryDAL) {
	d := dal.NewMemoryDAL()
	ps := pubsub.New()
	svc := recalc.New(d, scoring.DefaultRuleTable(), recalc.WithPublisher(ps))

	mux := http.NewServeMux()
	handlers.NewAPIHandlers(d, svc, ps, nil, nil).Register(mux, auth.NewAdminGuard(adminKey))
	return mux, d
}

// FuzzHTTPRecordResult fuzzes the admin result endpoint
func FuzzHTTPRecordResult(f *testing.F) {
	// Seed corpus with valid examples
	f.Add(`{"gameId":"East-r1-g1","round":1,"winner":"Duke"}`)
	f.Add(`{"gameId":"","round":9,"winner":""}`)
	f.Add(`{"gameId":"x","round":-1}`)
	f.Add(`[]`)

	f.Fuzz(func(t *testing.T, data string) {
		mux, d := newMux()

		req := httptest.NewRequest(http.MethodPost, "/api/results", bytes.NewBufferString(data))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(auth.AdminKeyHeader, adminKey)
		w := httptest.NewRecorder()

		mux.ServeHTTP(w, req)

		// Nothing outside rounds 1-6 may ever be stored
		results, _ := d.ListResults()
		for _, r := range results {
			if r.Round < scoring.MinRound || r.Round > scoring.MaxRound || r.Winner == "" {
				t.Fatalf("invalid result stored: %+v", r)
			}
		}
		if w.Code == http.StatusCreated && len(results) != 1 {
			t.Fatalf("201 returned but %d results stored", len(results))
		}
	})
}

// FuzzHTTPSaveBracket fuzzes the admin bracket submit endpoint
func FuzzHTTPSaveBracket(f *testing.F) {
	f.Add(`{"ownerName":"Ann","name":"A","picks":[{"gameId":"East-r1-g1","round":1,"rankedChoices":["Duke"]}]}`)
	f.Add(`{"ownerName":"Ann","name":"A","picks":[{"gameId":"East-r3-g1","round":3,"rankedChoices":["X","X"]}]}`)
	f.Add(`{"ownerName":"Ann","name":"A","picks":[{"gameId":"g","round":0,"rankedChoices":[]}]}`)
	f.Add(`{"picks":null}`)

	f.Fuzz(func(t *testing.T, data string) {
		mux, d := newMux()
		pool, err := d.CreatePool("fuzz")
		if err != nil {
			t.Fatal(err)
		}

		req := httptest.NewRequest(http.MethodPut, "/api/pools/"+pool.ID+"/brackets", bytes.NewBufferString(data))
		req.Header.Set(auth.AdminKeyHeader, adminKey)
		w := httptest.NewRecorder()

		mux.ServeHTTP(w, req)

		if w.Code >= http.StatusInternalServerError {
			t.Fatalf("bracket submit returned %d: %s", w.Code, w.Body.String())
		}

		// Every stored pick must satisfy the rule table
		table := scoring.DefaultRuleTable()
		brackets, _ := d.ListBrackets(pool.ID)
		for _, b := range brackets {
			if err := table.ValidatePicks(b.Picks); err != nil {
				t.Fatalf("invalid bracket stored: %v", err)
			}
		}
		if w.Code == http.StatusCreated && len(brackets) != 1 {
			t.Fatalf("201 returned but %d brackets stored", len(brackets))
		}
	})
}

// FuzzHTTPAdminKey fuzzes the admin key check
func FuzzHTTPAdminKey(f *testing.F) {
	f.Add("")
	f.Add("fuzz")
	f.Add("fuzz-key ")

	f.Fuzz(func(t *testing.T, key string) {
		mux, _ := newMux()

		req := httptest.NewRequest(http.MethodDelete, "/api/results/East-r1-g1", nil)
		req.Header.Set(auth.AdminKeyHeader, key)
		w := httptest.NewRecorder()

		mux.ServeHTTP(w, req)

		if key != adminKey && w.Code != http.StatusUnauthorized {
			t.Fatalf("key %q got status %d", key, w.Code)
		}
	})
}

// FuzzHTTPPathIDs fuzzes the id path segments of the read endpoints
func FuzzHTTPPathIDs(f *testing.F) {
	f.Add("pool_123")
	f.Add("")
	f.Add("%2e%2e")

	f.Fuzz(func(t *testing.T, id string) {
		mux, _ := newMux()

		for _, path := range []string{
			"/api/pools/" + id + "/leaderboard",
			"/api/brackets/" + id + "/score",
		} {
			req, err := http.NewRequest(http.MethodGet, "http://example.com"+path, nil)
			if err != nil {
				return
			}
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			if w.Code >= http.StatusInternalServerError {
				t.Fatalf("GET %s returned %d", path, w.Code)
			}
		}
	})
}

// FuzzLegacyPicks fuzzes the legacy pick blob parser and the scorer behind it
func FuzzLegacyPicks(f *testing.F) {
	f.Add(`{"East-r1-g1":"Duke","South-r2-g3":["UNC","Kansas"]}`)
	f.Add(`{"nonsense":1}`)
	f.Add(`null`)
	f.Add(`[1,2,3]`)

	table := scoring.DefaultRuleTable()
	f.Fuzz(func(t *testing.T, data string) {
		parsed, err := scoring.ParseLegacyPicks([]byte(data))
		if err != nil {
			return
		}

		score := scoring.ScoreBracket(table, scoring.Bracket{ID: "b", Picks: parsed.Picks}, scoring.NewResults(nil))
		if score.TotalScore != 0 {
			t.Fatalf("pending bracket scored %d", score.TotalScore)
		}
	})
}

// FuzzRuleTable fuzzes rule table parsing
func FuzzRuleTable(f *testing.F) {
	f.Add("rounds:\n  - round: 1\n    roundName: R1\n    gamesInRound: 32\n    choices: 1\n    pointsPerChoice: [1]\n")
	f.Add("{}")
	f.Add("")

	f.Fuzz(func(t *testing.T, data string) {
		table, err := scoring.ParseRuleTable([]byte(data))
		if err != nil {
			return
		}
		if table.MaxPointsTotal() < 0 {
			t.Fatalf("negative maximum from %q", data)
		}
	})
}

// FuzzBracketJSON fuzzes decoding stored bracket documents
func FuzzBracketJSON(f *testing.F) {
	f.Add(`{"id":"b","picks":[{"gameId":"g","round":1,"rankedChoices":["A"]}]}`)
	f.Add(`{"picks":null}`)
	f.Add(`null`)

	f.Fuzz(func(t *testing.T, data string) {
		var b models.Bracket
		// Should not panic on any input
		_ = json.Unmarshal([]byte(data), &b)
	})
}
