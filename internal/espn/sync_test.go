package espn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Traviscatt/picknroll-sub000/internal/dal"
	"github.com/Traviscatt/picknroll-sub000/internal/metrics"
	"github.com/Traviscatt/picknroll-sub000/internal/models"
	"github.com/Traviscatt/picknroll-sub000/internal/pubsub"
)

const scoreboard = `{
  "events": [
    {
      "id": "401",
      "name": "Vermont at Duke",
      "status": {"type": {"state": "post", "completed": true}},
      "competitions": [{
        "id": "401",
        "notes": [{"type": "event", "headline": "East-r1-g1"}],
        "competitors": [
          {"id": "1", "winner": true, "team": {"id": "150", "abbreviation": "DUKE", "displayName": "Duke Blue Devils"}},
          {"id": "2", "winner": false, "team": {"id": "261", "abbreviation": "UVM", "displayName": "Vermont Catamounts"}}
        ]
      }]
    },
    {
      "id": "402",
      "name": "Kansas at UNC",
      "status": {"type": {"state": "in", "completed": false}},
      "competitions": [{
        "id": "402",
        "notes": [{"headline": "South-r1-g2"}],
        "competitors": [
          {"id": "3", "team": {"abbreviation": "KU"}},
          {"id": "4", "team": {"abbreviation": "UNC"}}
        ]
      }]
    },
    {
      "id": "403",
      "name": "Mapped game",
      "status": {"type": {"completed": true}},
      "competitions": [{
        "id": "403",
        "notes": [{"headline": "Men's Basketball Championship - West Region - 2nd Round"}],
        "competitors": [
          {"id": "5", "winner": true, "team": {"abbreviation": "GONZ"}},
          {"id": "6", "team": {"abbreviation": "BAY"}}
        ]
      }]
    },
    {
      "id": "404",
      "name": "Unmapped exhibition",
      "status": {"type": {"completed": true}},
      "competitions": [{
        "id": "404",
        "competitors": [{"id": "7", "winner": true, "team": {"abbreviation": "X"}}]
      }]
    }
  ]
}`

func feedServer(t *testing.T, body *atomic.Value, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body.Load().(string)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResultsMapping(t *testing.T) {
	var body atomic.Value
	body.Store(scoreboard)
	srv := feedServer(t, &body, http.StatusOK)

	board, err := NewClient(srv.URL, nil).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, board.Events, 4)

	s := NewSyncer(nil, dal.NewMemoryDAL(), WithGameIDs(map[string]string{"403": "West-r2-g1"}))
	got := s.Results(board)

	assert.Equal(t, []models.GameResult{
		{GameID: "East-r1-g1", Round: 1, Winner: "DUKE"},
		{GameID: "West-r2-g1", Round: 2, Winner: "GONZ"},
	}, got)
}

func TestTeamKey(t *testing.T) {
	board := &Scoreboard{Events: []Event{{
		ID:     "1",
		Status: Status{Type: StatusType{Completed: true}},
		Competitions: []Competition{{
			Notes:       []Note{{Headline: "Midwest-r4-g1"}},
			Competitors: []Competitor{{Winner: true, Team: Team{ID: "2305", Abbreviation: "KU"}}},
		}},
	}}}

	s := NewSyncer(nil, dal.NewMemoryDAL(), WithTeamKey(func(t Team) string { return t.ID }))
	got := s.Results(board)
	require.Len(t, got, 1)
	assert.Equal(t, "2305", got[0].Winner)
	assert.Equal(t, 4, got[0].Round)
}

func TestSyncRecordsOnlyChanges(t *testing.T) {
	var body atomic.Value
	body.Store(scoreboard)
	srv := feedServer(t, &body, http.StatusOK)

	d := dal.NewMemoryDAL()
	ps := pubsub.New()
	events := ps.Subscribe()
	defer ps.Unsubscribe(events)
	m := metrics.New()

	s := NewSyncer(NewClient(srv.URL, nil), d, WithPublisher(ps), WithMetrics(m))

	n, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResultsRecorded.WithLabelValues("feed")))

	select {
	case e := <-events:
		assert.Equal(t, pubsub.EventResultsRecorded, e.Type)
		assert.Equal(t, "feed", e.Payload["source"])
	case <-time.After(time.Second):
		t.Fatal("no results:recorded event")
	}

	// Nothing new on the second poll
	n, err = s.Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	select {
	case e := <-events:
		t.Fatalf("unexpected event %+v", e)
	default:
	}

	// A corrected winner is written again
	body.Store(`{"events":[{"id":"401","status":{"type":{"completed":true}},"competitions":[{"id":"401",
		"notes":[{"headline":"East-r1-g1"}],"competitors":[{"winner":true,"team":{"abbreviation":"UVM"}}]}]}]}`)
	n, err = s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := d.ListResults()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "UVM", results[0].Winner)
}

func TestSyncFeedError(t *testing.T) {
	var body atomic.Value
	body.Store(`oops`)

	srv := feedServer(t, &body, http.StatusBadGateway)
	s := NewSyncer(NewClient(srv.URL, nil), dal.NewMemoryDAL())
	_, err := s.Sync(context.Background())
	assert.ErrorContains(t, err, "502")

	srv = feedServer(t, &body, http.StatusOK)
	s = NewSyncer(NewClient(srv.URL, nil), dal.NewMemoryDAL())
	_, err = s.Sync(context.Background())
	assert.ErrorContains(t, err, "decode")
}

func TestRunPollsUntilCancelled(t *testing.T) {
	var body atomic.Value
	body.Store(scoreboard)
	srv := feedServer(t, &body, http.StatusOK)

	d := dal.NewMemoryDAL()
	m := metrics.New()
	s := NewSyncer(NewClient(srv.URL, nil), d, WithMetrics(m), WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.FeedPolls.WithLabelValues("ok")) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	results, _ := d.ListResults()
	assert.Len(t, results, 1)
}
