package wrshare

import (
	"sync"
	"testing"
)

func TestCallTableResolveWins(t *testing.T) {
	tab := NewCallTable()
	call := tab.Create("req-1")
	if call == nil {
		t.Fatalf("fresh correlation ID refused")
	}
	if tab.Create("req-1") != nil {
		t.Fatalf("duplicate correlation ID accepted")
	}

	if !tab.Resolve("req-1", CallOutcome{StatusCode: 200}) {
		t.Fatalf("resolution of a live call refused")
	}
	select {
	case outcome := <-call.Done:
		if outcome.StatusCode != 200 {
			t.Errorf("outcome status = %d, want 200", outcome.StatusCode)
		}
	default:
		t.Fatalf("resolved call has no buffered outcome")
	}

	// The race is over; both late paths must find the entry gone.
	if tab.Resolve("req-1", CallOutcome{StatusCode: 500}) {
		t.Errorf("duplicate resolution accepted")
	}
	if tab.Cancel("req-1") {
		t.Errorf("cancel succeeded after resolution won")
	}
	if tab.Len() != 0 {
		t.Errorf("table not empty, %d entries", tab.Len())
	}
}

func TestCallTableCancelWins(t *testing.T) {
	tab := NewCallTable()
	call := tab.Create("req-1")

	if !tab.Cancel("req-1") {
		t.Fatalf("cancel of a live call refused")
	}
	if tab.Resolve("req-1", CallOutcome{StatusCode: 200}) {
		t.Errorf("resolution accepted after cancel won")
	}
	select {
	case <-call.Done:
		t.Errorf("cancelled call received an outcome")
	default:
	}
}

func TestCallTableRaceSingleWinner(t *testing.T) {
	tab := NewCallTable()
	call := tab.Create("req-1")

	var wg sync.WaitGroup
	results := make(chan string, 3)
	start := make(chan struct{})
	race := func(name string, attempt func() bool) {
		defer wg.Done()
		<-start
		if attempt() {
			results <- name
		}
	}
	wg.Add(3)
	go race("response", func() bool { return tab.Resolve("req-1", CallOutcome{StatusCode: 200}) })
	go race("error", func() bool { return tab.Resolve("req-1", CallOutcome{Err: "boom"}) })
	go race("timeout", func() bool { return tab.Cancel("req-1") })
	close(start)
	wg.Wait()
	close(results)

	winners := 0
	var winner string
	for name := range results {
		winners++
		winner = name
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	if winner == "timeout" {
		select {
		case <-call.Done:
			t.Errorf("timeout won but an outcome was delivered")
		default:
		}
	} else {
		select {
		case <-call.Done:
		default:
			t.Errorf("%s won but no outcome was delivered", winner)
		}
	}
}
