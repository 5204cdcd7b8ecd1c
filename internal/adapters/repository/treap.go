package repository

import (
	"math/rand/v2"
	"time"

	"github.com/okian/tops/internal/domain/model"
)

// Treap ordered set of one board's entries.
//
// Ordering: value DESC, then earlier update first, then identifier ASC.
// In-order traversal yields the board from best to worst, so the rightmost
// node holds the minimum value.

type node struct {
	id      model.Identifier
	key     string
	value   float64
	updated time.Time
	prio    uint64
	left    *node
	right   *node
	size    int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if a ranks before b.
func less(a, b *node) bool {
	if a.value != b.value {
		return a.value > b.value
	}
	if !a.updated.Equal(b.updated) {
		return a.updated.Before(b.updated)
	}
	return a.key < b.key
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func newNode(id model.Identifier, value float64, updated time.Time) *node {
	return &node{id: id, key: id.String(), value: value, updated: updated, prio: rand.Uint64(), size: 1}
}

func insert(n, x *node) *node {
	if n == nil {
		return x
	}
	if less(x, n) {
		n.left = insert(n.left, x)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, x)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

// erase removes the node equal to x (same id and ordering key).
func erase(n, x *node) *node {
	if n == nil {
		return nil
	}
	switch {
	case n.id == x.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = erase(n.right, x)
		} else {
			n = rotateLeft(n)
			n.left = erase(n.left, x)
		}
	case less(x, n):
		n.left = erase(n.left, x)
	default:
		n.right = erase(n.right, x)
	}
	fix(n)
	return n
}

// rank returns the 1-based in-order position of x, which must be in the tree.
func rank(n, x *node) int {
	r := 0
	for n != nil {
		switch {
		case n.id == x.id:
			return r + nsize(n.left) + 1
		case less(x, n):
			n = n.left
		default:
			r += nsize(n.left) + 1
			n = n.right
		}
	}
	return r + 1
}

// last returns the lowest ranked node.
func last(n *node) *node {
	if n == nil {
		return nil
	}
	for n.right != nil {
		n = n.right
	}
	return n
}

// collect appends nodes in rank order.
func collect(n *node, out *[]*node) {
	if n == nil {
		return
	}
	collect(n.left, out)
	*out = append(*out, n)
	collect(n.right, out)
}
