package state

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kr/pretty"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"simcheck/execution"
	"simcheck/logger"
	"simcheck/transition"
	"simcheck/wakeupTree"
)

var plog = logger.GetLogger("state")

// StatusProvider reports the actors of the application in its current state.
type StatusProvider interface {
	GetActorsStatus() ([]ActorInfo, error)
}

// State is one node of the explored state space.
//
// The actor table, the sets and the wakeup tree are protected by a mutex so
// that a state can be shared by the workers of the parallel explorer.
type State struct {
	num      int64
	parent   *State
	incoming *transition.Transition
	depth    int

	mu       sync.Mutex
	outgoing *transition.Transition
	actors   map[transition.Aid]*actorState
	sleep    map[transition.Aid]*transition.Transition

	usesWut        bool
	wut            *wakeupTree.Tree
	wutInitialized bool
	// branches picked from the wakeup tree, waiting for their child state,
	// in the order they were picked
	taken map[transition.Aid][]*wakeupTree.Node

	checkpoint    uint32
	hasCheckpoint bool
	toDelete      bool
	abandoned     bool
	racesComputed bool
	guide         any

	exploring atomic.Bool
	explored  atomic.Bool
	refs      atomic.Int32
}

func newState(num int64, parent *State, incoming *transition.Transition, infos []ActorInfo) *State {
	s := &State{
		num:      num,
		parent:   parent,
		incoming: incoming,
		actors:   map[transition.Aid]*actorState{},
		sleep:    map[transition.Aid]*transition.Transition{},
		wut:      wakeupTree.New(),
		taken:    map[transition.Aid][]*wakeupTree.Node{},
	}
	if parent != nil {
		s.depth = parent.depth + 1
	}
	for _, info := range infos {
		s.actors[info.Aid] = newActorState(info)
	}
	s.refs.Store(1)
	return s
}

func (s *State) Num() int64 {
	return s.num
}

func (s *State) Parent() *State {
	return s.parent
}

// Incoming returns the transition that led to this state, nil for the root.
func (s *State) Incoming() *transition.Transition {
	return s.incoming
}

func (s *State) Depth() int {
	return s.depth
}

func (s *State) Outgoing() *transition.Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outgoing
}

func (s *State) SetOutgoing(t *transition.Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outgoing = t
}

// Ancestors returns the states from the root to s, s included.
func (s *State) Ancestors() []*State {
	path := make([]*State, s.depth+1)
	for cur := s; cur != nil; cur = cur.parent {
		path[cur.depth] = cur
	}
	return path
}

// Actor returns the view of s on the actor aid.
func (s *State) Actor(aid transition.Aid) (ActorState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[aid]
	if !ok {
		return ActorState{}, false
	}
	return a.view(), true
}

// Actors returns the actor table ordered by actor id.
func (s *State) Actors() []ActorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ActorState, 0, len(s.actors))
	for _, aid := range s.sortedActors() {
		out = append(out, s.actors[aid].view())
	}
	return out
}

func (s *State) sortedActors() []transition.Aid {
	aids := maps.Keys(s.actors)
	slices.Sort(aids)
	return aids
}

// EnabledActors returns the enabled actors ordered by actor id.
func (s *State) EnabledActors() []transition.Aid {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []transition.Aid{}
	for _, aid := range s.sortedActors() {
		if s.actors[aid].enabled {
			out = append(out, aid)
		}
	}
	return out
}

func (s *State) IsEnabled(aid transition.Aid) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[aid]
	return ok && a.enabled
}

// NumActors returns the number of actors that have not terminated.
func (s *State) NumActors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actors)
}

// MarkTodo adds aid to the backtrack set. It returns false if the actor is
// disabled or was already scheduled or explored.
func (s *State) MarkTodo(aid transition.Aid) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[aid]
	return ok && a.markTodo()
}

// MarkAllEnabledTodo adds every enabled actor to the backtrack set and
// returns how many were added.
func (s *State) MarkAllEnabledTodo() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.actors {
		if a.markTodo() {
			n++
		}
	}
	return n
}

// MarkFirstAwakeTodo adds the enabled actor with the lowest id that is not
// asleep to the backtrack set.
func (s *State) MarkFirstAwakeTodo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, aid := range s.sortedActors() {
		a := s.actors[aid]
		if a.enabled && s.sleep[aid] == nil {
			return a.markTodo()
		}
	}
	return false
}

// BacktrackSet returns the actors that are scheduled or already explored.
func (s *State) BacktrackSet() map[transition.Aid]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[transition.Aid]bool{}
	for aid, a := range s.actors {
		if a.status != unknown {
			out[aid] = true
		}
	}
	return out
}

// NextTodo returns the scheduled actor with the lowest id that is neither
// asleep nor exhausted, and the number of times it was considered.
func (s *State) NextTodo() (transition.Aid, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, aid := range s.sortedActors() {
		a := s.actors[aid]
		if a.status == todo && a.enabled && s.sleep[aid] == nil && !a.exhausted() {
			return aid, a.timesConsidered
		}
	}
	return transition.NoActor, 0
}

// ExecuteNext records that aid is run from s for the variant times and
// returns the transition the actor was announced to run.
func (s *State) ExecuteNext(aid transition.Aid, times int) *transition.Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[aid]
	if !ok {
		return transition.NewUnknown(aid)
	}
	a.consider(times)
	if a.next == nil {
		return transition.NewUnknown(aid).WithTimes(times)
	}
	return a.next.WithTimes(times)
}

// Exhausted returns true if every variant of the step of aid was explored.
func (s *State) Exhausted(aid transition.Aid) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[aid]
	return !ok || a.exhausted()
}

// Sleep returns a copy of the sleep set.
func (s *State) Sleep() map[transition.Aid]*transition.Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.sleep)
}

func (s *State) AddSleep(aid transition.Aid, t *transition.Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleep[aid] = t
}

func (s *State) IsSleeping(aid transition.Aid) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sleep[aid] != nil
}

// InheritSleep copies the entries of the sleep set of the parent that are
// independent of the incoming transition.
func (s *State) InheritSleep() {
	if s.parent == nil || s.incoming == nil {
		return
	}
	inherited := s.parent.Sleep()
	s.mu.Lock()
	defer s.mu.Unlock()
	for aid, t := range inherited {
		if s.incoming.Independent(t) {
			s.sleep[aid] = t
		}
	}
}

// UseWakeupTree makes s pick its branches from its wakeup tree. The tree is
// seeded with the subtree of the branch the parent picked for the incoming
// transition.
func (s *State) UseWakeupTree() {
	var sub *wakeupTree.Tree
	if s.parent != nil && s.incoming != nil {
		sub = s.parent.takeBranch(s.incoming.Aid(), s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usesWut = true
	if sub != nil && !sub.Empty() {
		s.wut = sub
		s.wutInitialized = true
	}
}

// takeBranch attaches child to the oldest branch of aid picked from the
// wakeup tree and returns the rest of that branch. Several branches of the
// same actor can wait at once when workers pick from s concurrently.
func (s *State) takeBranch(aid transition.Aid, child *State) *wakeupTree.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.taken[aid]
	if len(pending) == 0 {
		return nil
	}
	n := pending[0]
	if len(pending) == 1 {
		delete(s.taken, aid)
	} else {
		s.taken[aid] = pending[1:]
	}
	return n.Attach(child)
}

// InsertIntoWut inserts v into the wakeup tree of s. When v starts with a
// branch being explored, the rest of v goes to the state exploring it. The
// state that gained a branch is returned.
func (s *State) InsertIntoWut(v execution.PartialExecution) (*State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wutInitialized = true
	return s.insertThrough(v)
}

// InsertBelow inserts w into the wakeup tree of a state exploring a branch
// of its parent.
func (s *State) InsertBelow(w execution.PartialExecution) (wakeupTree.Branch, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, inserted, err := s.insertThrough(w)
	if inserted && owner == s {
		s.wutInitialized = true
	}
	return owner, inserted, err
}

func (s *State) insertThrough(v execution.PartialExecution) (*State, bool, error) {
	owner, inserted, err := s.wut.InsertThrough(v)
	if err != nil || owner == nil {
		return s, inserted, err
	}
	return owner.(*State), inserted, nil
}

// Explored returns true once nothing is left to explore below s.
func (s *State) Explored() bool {
	return s.explored.Load()
}

// MarkExplored records that nothing is left to explore below s.
func (s *State) MarkExplored() {
	if s.explored.Swap(true) || s.parent == nil {
		return
	}
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	s.parent.wut.Forget(s)
}

// SubtreeExhausted returns true if nothing is left to run from s and every
// branch picked from its wakeup tree is explored.
func (s *State) SubtreeExhausted() bool {
	if s.HasMoreToExplore() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abandoned || s.wut.PickedExplored()
}

// ForceInsertIntoWut appends seq to the wakeup tree of s.
func (s *State) ForceInsertIntoWut(seq execution.PartialExecution) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wutInitialized = true
	return s.wut.ForceInsert(seq)
}

func (s *State) WutLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wut.Len()
}

// NextWutBranch picks the first branch of the wakeup tree and returns its
// actor. On the first call an empty tree is seeded with the enabled actor
// with the lowest id that is not asleep. Branches of disabled actors are
// dropped.
func (s *State) NextWutBranch() (transition.Aid, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.wutInitialized {
		s.wutInitialized = true
		for _, aid := range s.sortedActors() {
			a := s.actors[aid]
			if a.enabled && s.sleep[aid] == nil {
				next := a.next
				if next == nil {
					next = transition.NewUnknown(aid)
				}
				s.wut.ForceInsert(execution.PartialExecution{next.WithTimes(a.timesConsidered)})
				break
			}
		}
	}
	for {
		first := s.wut.MinSingleProcessNode()
		if first == nil {
			return transition.NoActor, 0
		}
		aid := first.Actor()
		if a, ok := s.actors[aid]; !ok || !a.enabled {
			plog.Debugf("state %d: dropping wakeup tree branch of disabled actor %d", s.num, aid)
			s.wut.RemoveMinSingleProcessSubtree()
			continue
		}
		s.wut.PickMinSingleProcessNode()
		s.taken[aid] = append(s.taken[aid], first)
		return aid, first.Transition().Times()
	}
}

// HasMoreToExplore returns true if some actor still has to be run from s.
func (s *State) HasMoreToExplore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abandoned {
		return false
	}
	if s.usesWut {
		if !s.wut.Empty() {
			return true
		}
		if s.wutInitialized {
			return false
		}
		for aid, a := range s.actors {
			if a.enabled && s.sleep[aid] == nil {
				return true
			}
		}
		return false
	}
	for aid, a := range s.actors {
		if a.status == todo && a.enabled && s.sleep[aid] == nil && !a.exhausted() {
			return true
		}
	}
	return false
}

// Abandon prevents anything from being explored from s anymore.
func (s *State) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandoned = true
}

func (s *State) MarkToDelete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toDelete = true
}

func (s *State) ToDelete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toDelete
}

// RacesComputed returns true once the races of the transition leading to s
// have been computed.
func (s *State) RacesComputed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.racesComputed
}

func (s *State) SetRacesComputed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.racesComputed = true
}

func (s *State) SetCheckpoint(cp uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint = cp
	s.hasCheckpoint = true
}

// Checkpoint returns the checkpoint of the application taken at s, if any.
func (s *State) Checkpoint() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoint, s.hasCheckpoint
}

func (s *State) ClearCheckpoint() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasCheckpoint = false
}

// SetGuide attaches the data used by guided explorers to rank s.
func (s *State) SetGuide(g any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guide = g
}

func (s *State) Guide() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guide
}

// TryClaim marks s as being explored. It returns false if another worker
// already claimed it.
func (s *State) TryClaim() bool {
	return s.exploring.CompareAndSwap(false, true)
}

func (s *State) ReleaseClaim() {
	s.exploring.Store(false)
}

// Retain adds a reference to s.
func (s *State) Retain() {
	s.refs.Add(1)
}

// Release drops a reference to s and returns the number left.
func (s *State) Release() int32 {
	n := s.refs.Add(-1)
	if n < 0 {
		plog.Panicf("state %d released more times than retained", s.num)
	}
	return n
}

func (s *State) Refs() int32 {
	return s.refs.Load()
}

func (s *State) String() string {
	return fmt.Sprintf("State %d (depth %d)", s.num, s.depth)
}

// Describe returns a multi-line dump of the actor table and the sets of s.
func (s *State) Describe() string {
	actors := s.Actors()
	s.mu.Lock()
	defer s.mu.Unlock()
	sleeping := maps.Keys(s.sleep)
	slices.Sort(sleeping)
	return pretty.Sprintf("%v\nactors: %# v\nsleep: %v\nwakeup tree:\n%s", s, actors, sleeping, s.wut)
}

// Stack is the path from the root to the current state.
type Stack []*State

// Top returns the last state of the stack, nil if it is empty.
func (st Stack) Top() *State {
	if len(st) == 0 {
		return nil
	}
	return st[len(st)-1]
}

// Transitions returns the incoming transitions of the states of the stack.
func (st Stack) Transitions() execution.PartialExecution {
	out := execution.PartialExecution{}
	for _, s := range st {
		if s.incoming != nil {
			out = append(out, s.incoming)
		}
	}
	return out
}
