package tiles

// lruNode is a node in the usage list. It stores the tile ID so the
// oldest entry can be found without a map scan.
type lruNode struct {
	id   ID
	prev *lruNode
	next *lruNode
}

// lruList orders evictable tiles by last use. The head is the most
// recently used, the tail the least.
type lruList struct {
	head *lruNode
	tail *lruNode
	len  int
}

// Len returns the number of nodes in the list.
func (l *lruList) Len() int {
	return l.len
}

// PushFront adds id as the most recently used entry.
func (l *lruList) PushFront(id ID) *lruNode {
	node := &lruNode{id: id}
	l.linkFront(node)
	return node
}

// MoveToFront marks an existing node as most recently used.
func (l *lruList) MoveToFront(node *lruNode) {
	if node == nil || node == l.head {
		return
	}
	l.unlink(node)
	l.linkFront(node)
}

// Remove removes a node from the list.
func (l *lruList) Remove(node *lruNode) {
	if node == nil {
		return
	}
	l.unlink(node)
}

// Oldest returns the least recently used ID.
func (l *lruList) Oldest() (ID, bool) {
	if l.tail == nil {
		return ID{}, false
	}
	return l.tail.id, true
}

// Clear removes all nodes.
func (l *lruList) Clear() {
	l.head = nil
	l.tail = nil
	l.len = 0
}

func (l *lruList) linkFront(node *lruNode) {
	node.prev = nil
	node.next = l.head
	if l.head != nil {
		l.head.prev = node
	}
	l.head = node
	if l.tail == nil {
		l.tail = node
	}
	l.len++
}

// unlink detaches node and clears its pointers.
func (l *lruList) unlink(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}

	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}

	node.prev = nil
	node.next = nil
	l.len--
}
