package playback

import (
	"errors"
	"testing"
	"testing/synctest"

	"github.com/llehouerou/wavelet/internal/catalog"
)

func TestNewSubscription_ChannelsReadable(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		sub := newSubscription()

		sub.sendState(StateChange{Previous: StateIdle, Current: StatePlaying})
		sub.sendTrack(TrackChange{Index: 1, Current: &catalog.Track{ID: "b"}})
		sub.sendError(ErrorEvent{Operation: "play", Err: errors.New("boom")})

		e := <-sub.StateChanged
		if e.Current != StatePlaying {
			t.Errorf("StateChanged.Current = %v, want Playing", e.Current)
		}

		tr := <-sub.TrackChanged
		if tr.Index != 1 || tr.Current == nil || tr.Current.ID != "b" {
			t.Errorf("TrackChanged = %+v, want index 1 track b", tr)
		}

		ev := <-sub.Error
		if ev.Operation != "play" {
			t.Errorf("Error.Operation = %q, want play", ev.Operation)
		}
	})
}

func TestSubscription_Close_SignalsDone(t *testing.T) {
	synctest.Test(t, func(_ *testing.T) {
		sub := newSubscription()
		sub.close()
		<-sub.Done
	})
}

func TestSubscription_NonBlocking_DropsWhenFull(t *testing.T) {
	sub := newSubscription()

	// Fill buffer
	for range eventBufferSize + 5 {
		sub.sendState(StateChange{})
	}

	// Should not block or panic - count what we got
	count := 0
	for {
		select {
		case <-sub.StateChanged:
			count++
		default:
			goto done
		}
	}
done:
	if count != eventBufferSize {
		t.Errorf("received %d events, want %d (buffer size)", count, eventBufferSize)
	}
}
