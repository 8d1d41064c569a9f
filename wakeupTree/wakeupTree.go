package wakeupTree

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"simcheck/execution"
	"simcheck/transition"
)

// Node is a node of a wakeup tree. The root is the only node without a
// transition.
type Node struct {
	t        *transition.Transition
	parent   *Node
	children []*Node
	depth    int

	// set on the branches of the root picked for exploration
	picked   bool
	branch   Branch
	explored bool
}

// Branch is what explores a picked branch of a tree: the state reached by
// its first transition, which received the rest of the branch.
type Branch interface {
	// Explored returns true once nothing is left to explore below the
	// branch.
	Explored() bool
	// InsertBelow inserts w into the tree of the branch and returns where
	// nodes were added.
	InsertBelow(w execution.PartialExecution) (Branch, bool, error)
}

func (n *Node) Transition() *transition.Transition {
	return n.t
}

func (n *Node) Parent() *Node {
	return n.parent
}

func (n *Node) Children() []*Node {
	return n.children
}

func (n *Node) Depth() int {
	return n.depth
}

func (n *Node) IsRoot() bool {
	return n.parent == nil
}

func (n *Node) IsLeaf() bool {
	return len(n.children) == 0
}

// Picked returns true if the branch starting at n is being explored.
func (n *Node) Picked() bool {
	return n.picked
}

// Actor returns the actor of the transition of the node.
func (n *Node) Actor() transition.Aid {
	if n.t == nil {
		return transition.NoActor
	}
	return n.t.Aid()
}

// Adds a new child with the provided transition as the last child of the
// node. Returns the child when done
func (n *Node) addChild(t *transition.Transition) *Node {
	child := &Node{
		t:      t,
		parent: n,
		depth:  n.depth + 1,
	}
	n.children = append(n.children, child)
	return child
}

// Sequence returns the transitions on the path from the root to the node.
func (n *Node) Sequence() execution.PartialExecution {
	seq := make(execution.PartialExecution, n.depth)
	for cur := n; !cur.IsRoot(); cur = cur.parent {
		seq[cur.depth-1] = cur.t
	}
	return seq
}

// postOrder calls visit on every node below n, children before their parent
// and siblings in insertion order. It stops as soon as visit returns false.
func (n *Node) postOrder(visit func(*Node) bool) bool {
	for _, child := range n.children {
		if !child.postOrder(visit) {
			return false
		}
	}
	return visit(n)
}

// Tree is a wakeup tree: the sequences of transitions that must still be
// explored from a state.
//
// A branch of the root stays in the tree once picked. Its subtree moves to
// the Branch exploring it, and the sequences inserted through it later are
// handed to that Branch until it is explored.
type Tree struct {
	root *Node
}

// New returns a tree containing only the root.
func New() *Tree {
	return &Tree{root: &Node{}}
}

func (t *Tree) Root() *Node {
	return t.root
}

// Empty returns true if every branch of the root was picked.
func (t *Tree) Empty() bool {
	return t.MinSingleProcessNode() == nil
}

// Returns the total number of nodes in the tree, the root excluded
func (t *Tree) Len() int {
	n := -1
	t.root.postOrder(func(*Node) bool {
		n++
		return true
	})
	return n
}

// Insert adds the sequence w to the tree unless a sequence equivalent to a
// prefix of w is already a leaf. The first node v in post-order for which
// v.w' is equivalent to w receives w' as a new branch. Insert returns true
// if nodes were added.
func (t *Tree) Insert(w execution.PartialExecution) (bool, error) {
	_, inserted, err := t.InsertThrough(w)
	return inserted, err
}

// InsertThrough is Insert for a tree some branches of which were picked.
// When w goes through a picked branch, the rest of it is inserted below
// that Branch, which is returned. The owner is nil when nodes were added
// to t itself.
func (t *Tree) InsertThrough(w execution.PartialExecution) (Branch, bool, error) {
	var (
		owner    Branch
		inserted bool
		done     bool
		err      error
	)
	t.root.postOrder(func(n *Node) bool {
		rest, ok, e := execution.ShortestOdporSqSubsetInsertion(n.Sequence(), w)
		if e != nil {
			err = e
			return false
		}
		if !ok {
			return true
		}
		done = true
		if n.picked && len(rest) > 0 {
			switch {
			case n.explored:
				return false
			case n.branch != nil:
				if n.branch.Explored() {
					return false
				}
				owner, inserted, err = n.branch.InsertBelow(rest)
				return false
			}
		}
		// a leaf already covers w
		if n.IsLeaf() && !n.IsRoot() {
			return false
		}
		if len(rest) == 0 {
			return false
		}
		cur := n
		for _, wt := range rest {
			cur = cur.addChild(wt)
		}
		inserted = true
		return false
	})
	if err != nil {
		return nil, false, err
	}
	if !done {
		return nil, false, errors.AssertionFailedf("inserting %s failed even at the root of %s", w, t)
	}
	return owner, inserted, nil
}

// ForceInsert walks the children that belong to the same actor as the next
// transition of seq and appends the remainder at the first divergence.
// Picked branches are not walked.
func (t *Tree) ForceInsert(seq execution.PartialExecution) bool {
	cur := t.root
	for i, wt := range seq {
		var next *Node
		for _, child := range cur.children {
			if !child.picked && child.Actor() == wt.Aid() {
				next = child
				break
			}
		}
		if next == nil {
			for _, rest := range seq[i:] {
				cur = cur.addChild(rest)
			}
			return true
		}
		cur = next
	}
	return false
}

// Contains returns true if some node of the tree has exactly the sequence seq.
func (t *Tree) Contains(seq execution.PartialExecution) bool {
	cur := t.root
	for _, wt := range seq {
		var next *Node
		for _, child := range cur.children {
			if child.t.Equal(wt) {
				next = child
				break
			}
		}
		if next == nil {
			return false
		}
		cur = next
	}
	return true
}

// MinSingleProcessNode returns the first child of the root not picked yet,
// the next branch to explore, or nil if the tree is empty.
func (t *Tree) MinSingleProcessNode() *Node {
	for _, child := range t.root.children {
		if !child.picked {
			return child
		}
	}
	return nil
}

// RemoveMinSingleProcessSubtree removes the first branch of the tree not
// picked yet.
func (t *Tree) RemoveMinSingleProcessSubtree() {
	for i, child := range t.root.children {
		if !child.picked {
			child.parent = nil
			t.root.children = append(t.root.children[:i:i], t.root.children[i+1:]...)
			return
		}
	}
}

// PickMinSingleProcessNode marks the next branch to explore as picked and
// returns it, nil if the tree is empty.
func (t *Tree) PickMinSingleProcessNode() *Node {
	n := t.MinSingleProcessNode()
	if n != nil {
		n.picked = true
	}
	return n
}

// Attach hands the subtree below the picked branch n over to b and returns
// it as a tree of its own.
func (n *Node) Attach(b Branch) *Tree {
	sub := &Tree{root: &Node{}}
	for _, child := range n.children {
		child.parent = sub.root
		child.shift(1)
		sub.root.children = append(sub.root.children, child)
	}
	n.children = nil
	n.branch = b
	return sub
}

func (n *Node) shift(depth int) {
	n.depth = depth
	for _, child := range n.children {
		child.shift(depth + 1)
	}
}

// Forget records that the branch b is explored and drops the reference to
// it.
func (t *Tree) Forget(b Branch) bool {
	for _, child := range t.root.children {
		if child.branch == b {
			child.branch = nil
			child.explored = true
			return true
		}
	}
	return false
}

// PickedExplored returns true if every picked branch was handed over and is
// explored.
func (t *Tree) PickedExplored() bool {
	for _, child := range t.root.children {
		if !child.picked || child.explored {
			continue
		}
		if child.branch == nil || !child.branch.Explored() {
			return false
		}
	}
	return true
}

// String representation of the tree, one node per line
func (t *Tree) String() string {
	out := strings.Builder{}
	var write func(n *Node)
	write = func(n *Node) {
		for i := 0; i < n.depth; i++ {
			out.WriteString("-")
		}
		if n.IsRoot() {
			out.WriteString("root\n")
		} else if n.picked {
			out.WriteString(fmt.Sprintf("%d: %v (picked)\n", n.Actor(), n.t))
		} else {
			out.WriteString(fmt.Sprintf("%d: %v\n", n.Actor(), n.t))
		}
		for _, child := range n.children {
			write(child)
		}
	}
	write(t.root)
	return out.String()
}

func (t *Tree) Newick() string {
	return t.root.newick() + ";"
}

func (n *Node) newick() string {
	out := strings.Builder{}
	if len(n.children) > 0 {
		out.WriteString("(")
		for i, child := range n.children {
			if i > 0 {
				out.WriteString(",")
			}
			out.WriteString(child.newick())
		}
		out.WriteString(")")
	}
	if n.IsRoot() {
		out.WriteString("\"root\"")
	} else {
		out.WriteString(fmt.Sprintf("\"%d:%v\"", n.Actor(), n.t))
	}
	return out.String()
}
