package application

import "github.com/example/session-orchestrator/internal/notify"

// rosterList selects one of the four roster lists.
type rosterList func(*Rosters) *[]RosterEntry

func participantWaiting(r *Rosters) *[]RosterEntry { return &r.ParticipantWaiting }
func observerWaiting(r *Rosters) *[]RosterEntry    { return &r.ObserverWaiting }
func activeParticipants(r *Rosters) *[]RosterEntry { return &r.ActiveParticipants }
func activeObservers(r *Rosters) *[]RosterEntry    { return &r.ActiveObservers }

// admissionPolicy is how a role enters a live session.
type admissionPolicy struct {
	// presence lists make a repeat enqueue a no-op.
	presence []rosterList
	// enter lists receive the new entry. More than one is a dual write.
	enter []rosterList
	// topic is published when the roster changed.
	topic notify.Topic
}

var admissionPolicies = map[Role]admissionPolicy{
	RoleParticipant: {
		presence: []rosterList{participantWaiting, activeParticipants},
		enter:    []rosterList{participantWaiting},
		topic:    notify.TopicParticipantWaitingRoomUpdated,
	},
	RoleObserver: {
		presence: []rosterList{observerWaiting, activeObservers},
		enter:    []rosterList{observerWaiting},
		topic:    notify.TopicObserverWaitingRoomUpdated,
	},
	RoleModerator: {
		presence: []rosterList{activeObservers, activeParticipants},
		enter:    []rosterList{activeObservers, activeParticipants},
		topic:    notify.TopicParticipantListUpdated,
	},
	RoleAdmin: {
		presence: []rosterList{activeObservers, activeParticipants},
		enter:    []rosterList{activeObservers, activeParticipants},
		topic:    notify.TopicParticipantListUpdated,
	},
}

// admit applies the role's policy to rosters. It reports false when the
// person is already present and nothing changed.
func (p admissionPolicy) admit(rosters *Rosters, entry RosterEntry) bool {
	key := entry.Key()
	for _, list := range p.presence {
		if indexOf(*list(rosters), key) >= 0 {
			return false
		}
	}
	for _, list := range p.enter {
		target := list(rosters)
		*target = append(*target, entry)
	}
	return true
}

func indexOf(entries []RosterEntry, key string) int {
	for i, entry := range entries {
		if entry.Key() == key {
			return i
		}
	}
	return -1
}

// removeEntry drops the entry with key from list and returns it.
func removeEntry(list *[]RosterEntry, key string) (RosterEntry, bool) {
	i := indexOf(*list, key)
	if i < 0 {
		return RosterEntry{}, false
	}
	entry := (*list)[i]
	*list = append((*list)[:i:i], (*list)[i+1:]...)
	return entry, true
}
