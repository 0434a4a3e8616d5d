// Package authz decides read/write eligibility for tasks and guards group
// nesting against cycles. Group reachability is a worklist BFS over
// membership edges with a visited set, so cyclic membership graphs still
// terminate with a finite result.
package authz

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"smarttodo/internal/db"
	"smarttodo/internal/scope"
)

// maxTraversalDepth bounds BFS layers defensively against pathological
// membership graphs. Legitimate nesting never gets anywhere near this.
const maxTraversalDepth = 64

type Checker struct {
	gdb *gorm.DB
}

func NewChecker(gdb *gorm.DB) (*Checker, error) {
	if gdb == nil {
		return nil, errors.New("db is required")
	}
	return &Checker{gdb: gdb}, nil
}

// AccessibleGroupIDs returns every group id reachable from the user's direct
// memberships, closed upward through any group that lists a reachable group
// as a nested member.
func (c *Checker) AccessibleGroupIDs(userID int64) (map[int64]bool, error) {
	var direct []db.GroupMembership
	if err := c.gdb.Where("user_id = ?", userID).Find(&direct).Error; err != nil {
		return nil, fmt.Errorf("load memberships for user %d: %w", userID, err)
	}

	visited := map[int64]bool{}
	frontier := make([]int64, 0, len(direct))
	for _, m := range direct {
		if !visited[m.GroupID] {
			visited[m.GroupID] = true
			frontier = append(frontier, m.GroupID)
		}
	}

	for depth := 0; len(frontier) > 0 && depth < maxTraversalDepth; depth++ {
		var parents []db.GroupMembership
		if err := c.gdb.Where("member_group_id IN ?", frontier).Find(&parents).Error; err != nil {
			return nil, fmt.Errorf("load parent memberships: %w", err)
		}
		next := make([]int64, 0, len(parents))
		for _, m := range parents {
			if !visited[m.GroupID] {
				visited[m.GroupID] = true
				next = append(next, m.GroupID)
			}
		}
		frontier = next
	}
	return visited, nil
}

// WouldCreateCycle reports whether adding childGroupID as a member of
// parentGroupID would create a membership cycle. The descendant closure of a
// group includes the group itself, so WouldCreateCycle(a, a) is true.
func (c *Checker) WouldCreateCycle(parentGroupID, childGroupID int64) (bool, error) {
	visited := map[int64]bool{childGroupID: true}
	frontier := []int64{childGroupID}

	for depth := 0; len(frontier) > 0 && depth < maxTraversalDepth; depth++ {
		if visited[parentGroupID] {
			return true, nil
		}
		var members []db.GroupMembership
		if err := c.gdb.Where("group_id IN ? AND member_group_id IS NOT NULL", frontier).Find(&members).Error; err != nil {
			return false, fmt.Errorf("load nested members: %w", err)
		}
		next := make([]int64, 0, len(members))
		for _, m := range members {
			if m.MemberGroupID == nil {
				continue
			}
			id := *m.MemberGroupID
			if !visited[id] {
				visited[id] = true
				next = append(next, id)
			}
		}
		frontier = next
	}
	return visited[parentGroupID], nil
}

// CanRead reports whether the principal may see the task: owner, direct
// assignee, or member of the assigned group (nested membership counts).
func (c *Checker) CanRead(sc scope.Scope, task db.Task) (bool, error) {
	userID := sc.UserID()
	if task.UserID == userID {
		return true, nil
	}
	if task.AssigneeID != nil && *task.AssigneeID == userID {
		return true, nil
	}
	if task.AssignedGroupID != nil {
		groups, err := c.AccessibleGroupIDs(userID)
		if err != nil {
			return false, err
		}
		return groups[*task.AssignedGroupID], nil
	}
	return false, nil
}

// CanWrite reports whether the principal may mutate the task. Assignment
// does not grant write; only the owner writes.
func (c *Checker) CanWrite(sc scope.Scope, task db.Task) bool {
	return task.UserID == sc.UserID()
}
