// Package groupstore manages groups and their memberships. Memberships
// reference exactly one of a user or a nested group; nested-group additions
// are rejected when they would close a membership cycle.
package groupstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"smarttodo/internal/apperr"
	"smarttodo/internal/authz"
	"smarttodo/internal/db"
	"smarttodo/internal/scope"
)

type Store struct {
	gdb     *gorm.DB
	checker *authz.Checker
}

func NewStore(gdb *gorm.DB, checker *authz.Checker) (*Store, error) {
	if gdb == nil {
		return nil, errors.New("db is required")
	}
	if checker == nil {
		return nil, errors.New("authz checker is required")
	}
	return &Store{gdb: gdb, checker: checker}, nil
}

func (s *Store) Create(ctx context.Context, sc scope.Scope, name, description string) (*db.Group, error) {
	if name == "" {
		return nil, apperr.Validation("group name is required")
	}
	var existing db.Group
	err := s.gdb.WithContext(ctx).First(&existing, "name = ?", name).Error
	if err == nil {
		return nil, apperr.Validation("group name %q already exists", name)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check group name: %w", err)
	}

	group := db.Group{Name: name, Description: description, CreatedByUserID: sc.UserID()}
	if err := s.gdb.WithContext(ctx).Create(&group).Error; err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}
	return &group, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*db.Group, error) {
	var group db.Group
	err := s.gdb.WithContext(ctx).First(&group, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("group %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load group %d: %w", id, err)
	}
	return &group, nil
}

func (s *Store) List(ctx context.Context) ([]db.Group, error) {
	var groups []db.Group
	if err := s.gdb.WithContext(ctx).Order("id").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

func (s *Store) Delete(ctx context.Context, sc scope.Scope, id int64) error {
	group, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if group.CreatedByUserID != sc.UserID() {
		return apperr.Forbidden("not authorized to delete group %d", id)
	}
	return s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ? OR member_group_id = ?", id, id).Delete(&db.GroupMembership{}).Error; err != nil {
			return fmt.Errorf("delete memberships of group %d: %w", id, err)
		}
		if err := tx.Delete(&db.Group{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("delete group %d: %w", id, err)
		}
		return nil
	})
}

// AddUserMember adds a user to a group. Creator only.
func (s *Store) AddUserMember(ctx context.Context, sc scope.Scope, groupID, userID int64) (*db.GroupMembership, error) {
	group, err := s.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.CreatedByUserID != sc.UserID() {
		return nil, apperr.Forbidden("not authorized to modify group %d", groupID)
	}
	var count int64
	if err := s.gdb.WithContext(ctx).Model(&db.GroupMembership{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if count > 0 {
		return nil, apperr.Validation("user %d is already a member of group %d", userID, groupID)
	}
	membership := db.GroupMembership{GroupID: groupID, UserID: &userID}
	if err := s.gdb.WithContext(ctx).Create(&membership).Error; err != nil {
		return nil, fmt.Errorf("insert membership: %w", err)
	}
	return &membership, nil
}

// AddGroupMember nests memberGroupID inside groupID, rejecting cycles.
func (s *Store) AddGroupMember(ctx context.Context, sc scope.Scope, groupID, memberGroupID int64) (*db.GroupMembership, error) {
	group, err := s.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.CreatedByUserID != sc.UserID() {
		return nil, apperr.Forbidden("not authorized to modify group %d", groupID)
	}
	if _, err := s.Get(ctx, memberGroupID); err != nil {
		return nil, err
	}
	cyclic, err := s.checker.WouldCreateCycle(groupID, memberGroupID)
	if err != nil {
		return nil, err
	}
	if cyclic {
		return nil, apperr.Validation("adding group %d to group %d would create a cycle", memberGroupID, groupID)
	}
	var count int64
	if err := s.gdb.WithContext(ctx).Model(&db.GroupMembership{}).
		Where("group_id = ? AND member_group_id = ?", groupID, memberGroupID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if count > 0 {
		return nil, apperr.Validation("group %d is already a member of group %d", memberGroupID, groupID)
	}
	membership := db.GroupMembership{GroupID: groupID, MemberGroupID: &memberGroupID}
	if err := s.gdb.WithContext(ctx).Create(&membership).Error; err != nil {
		return nil, fmt.Errorf("insert membership: %w", err)
	}
	return &membership, nil
}

// RemoveMember deletes a membership row by id. Creator only.
func (s *Store) RemoveMember(ctx context.Context, sc scope.Scope, groupID, membershipID int64) error {
	group, err := s.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if group.CreatedByUserID != sc.UserID() {
		return apperr.Forbidden("not authorized to modify group %d", groupID)
	}
	res := s.gdb.WithContext(ctx).Where("id = ? AND group_id = ?", membershipID, groupID).Delete(&db.GroupMembership{})
	if res.Error != nil {
		return fmt.Errorf("delete membership %d: %w", membershipID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("membership %d not found in group %d", membershipID, groupID)
	}
	return nil
}

// Touch updates name/description. Creator only.
func (s *Store) Touch(ctx context.Context, sc scope.Scope, id int64, name, description *string) (*db.Group, error) {
	group, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if group.CreatedByUserID != sc.UserID() {
		return nil, apperr.Forbidden("not authorized to modify group %d", id)
	}
	if name != nil && *name != "" && *name != group.Name {
		var count int64
		if err := s.gdb.WithContext(ctx).Model(&db.Group{}).Where("name = ?", *name).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("check group name: %w", err)
		}
		if count > 0 {
			return nil, apperr.Validation("group name %q already exists", *name)
		}
		group.Name = *name
	}
	if description != nil {
		group.Description = *description
	}
	group.UpdatedAt = time.Now().UTC()
	if err := s.gdb.WithContext(ctx).Save(group).Error; err != nil {
		return nil, fmt.Errorf("save group %d: %w", id, err)
	}
	return group, nil
}
