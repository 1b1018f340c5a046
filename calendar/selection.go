/*
selection.go - Selection state machine

PURPOSE:
  Mediates a day press: validate against the engine, then either change the
  selection and notify the detail view, or emit a reason and leave the
  state untouched.

STATES AND TRANSITIONS:
  none     --press(valid)-------------->  selected(key)
  selected --press(valid, same key)---->  none            (toggle)
  selected --press(valid, other key)--->  selected(other)
  any      --press(invalid)------------>  unchanged       (rejected + reason)
  any      --Reset()------------------->  none

  "valid" means available, limited or full. A full key is accepted with a
  waitlist offer. A user_requested key is neither valid nor invalid: the
  press is ignored, and deselects that key if it was selected.

  Zone access is checked before anything else.

STALE SELECTIONS:
  When a refetch removes the allotment behind the selected key, the
  selection clears the next time it is read.
*/
package calendar

import (
	"sync"
	"time"
)

type OutcomeKind string

const (
	OutcomeSelected   OutcomeKind = "selected"
	OutcomeDeselected OutcomeKind = "deselected"
	OutcomeRejected   OutcomeKind = "rejected"
	OutcomeIgnored    OutcomeKind = "ignored"
)

// Outcome is the result of one press.
type Outcome struct {
	Kind          OutcomeKind
	Day           Day
	Key           Day
	Reason        Reason
	WaitlistOffer bool
	Assessment    Assessment
	Selected      *Day // selection after the press
}

// Accepted reports whether the press changed the selection.
func (o Outcome) Accepted() bool {
	return o.Kind == OutcomeSelected || o.Kind == OutcomeDeselected
}

// Selection is the SelectionState of one member on one calendar.
type Selection struct {
	cal    *Calendar
	member Member
	zone   *ZoneID

	// OnSelect is called, outside the lock, with the key of every new
	// selection so the detail view can fetch occupants.
	OnSelect func(key Day)

	// OnReject is called with every rejected outcome.
	OnReject func(Outcome)

	mu         sync.Mutex
	key        Day
	selected   bool
	generation uint64
}

func (s *Selection) Member() Member { return s.member }

func (s *Selection) query(now time.Time) Query {
	return Query{Member: s.member, Zone: s.zone, Now: now}
}

// Press handles a press on day at now.
func (s *Selection) Press(day Day, now time.Time) Outcome {
	q := s.query(now)
	out := Outcome{Day: day, Key: s.cal.engine.Policy.KeyOf(day)}

	if reason := CheckZoneAccess(q); reason != ReasonNone {
		out.Kind, out.Reason = OutcomeRejected, reason
		s.mu.Lock()
		out.Selected = s.currentLocked()
		s.mu.Unlock()
		s.emit(out)
		return out
	}

	snap := s.cal.Snapshot()
	a := s.cal.engine.Classify(snap, q, day)
	out.Assessment, out.Key = a, a.Key

	s.mu.Lock()
	s.revalidateLocked(snap)
	switch a.Verdict {
	case VerdictUserRequested:
		out.Kind = OutcomeIgnored
		if s.selected && s.key == a.Key {
			s.selected = false
			out.Kind = OutcomeDeselected
		}
	case VerdictUnavailable, VerdictUnallocated:
		out.Kind, out.Reason = OutcomeRejected, a.Reason
	default:
		if s.selected && s.key == a.Key {
			s.selected = false
			out.Kind = OutcomeDeselected
			break
		}
		s.key, s.selected, s.generation = a.Key, true, a.Generation
		out.Kind = OutcomeSelected
		out.Reason = a.Reason
		out.WaitlistOffer = a.Verdict == VerdictFull
	}
	out.Selected = s.currentLocked()
	s.mu.Unlock()

	s.emit(out)
	return out
}

func (s *Selection) emit(out Outcome) {
	s.cal.observer.ObservePress(s.cal.Kind(), out)
	switch {
	case out.Kind == OutcomeSelected && s.OnSelect != nil:
		s.OnSelect(out.Key)
	case out.Kind == OutcomeRejected && s.OnReject != nil:
		s.OnReject(out)
	}
}

// Current returns the selected key, clearing it first if the allotment
// behind it disappeared in a newer snapshot.
func (s *Selection) Current() (Day, bool) {
	snap := s.cal.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revalidateLocked(snap)
	return s.key, s.selected
}

func (s *Selection) revalidateLocked(snap *Snapshot) {
	if !s.selected || snap.Generation() == s.generation && snap != nil {
		return
	}
	zone := s.zone
	if zone == nil {
		zone = s.member.ZoneID
	}
	if _, ok := snap.Allotments().Get(s.key, zone); !ok {
		s.selected = false
		return
	}
	s.generation = snap.Generation()
}

func (s *Selection) currentLocked() *Day {
	if !s.selected {
		return nil
	}
	k := s.key
	return &k
}

// Clear deselects without a press.
func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = false
}

// Reset returns the selection to its terminal none state.
func (s *Selection) Reset() { s.Clear() }
