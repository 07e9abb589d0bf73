package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/strata-db/strata/internal/errors"
	"github.com/strata-db/strata/internal/metrics"
	"github.com/strata-db/strata/internal/model"
	"github.com/strata-db/strata/internal/storage/journal"
	"go.uber.org/zap"
)

// timeNow is swapped in tests
var timeNow = time.Now

// AccessService maintains the role inheritance DAG and the grant table, and
// answers privilege checks. A role holds the union of its own grants and
// every ancestor's, so checks memoize the ancestor closure per role and
// invalidate it whenever any edge changes.
type AccessService struct {
	journal *journal.Journal
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	nextRoleID model.RoleID
	roles      map[model.RoleID]*model.Role
	byName     map[string]model.RoleID
	grants     map[model.RoleID][]model.Grant
	closures   map[model.RoleID]map[model.RoleID]bool
}

// NewAccessService creates a new access service
func NewAccessService(jnl *journal.Journal, logger *zap.Logger, m *metrics.Metrics) *AccessService {
	return &AccessService{
		journal:    jnl,
		logger:     logger,
		metrics:    m,
		nextRoleID: 1,
		roles:      make(map[model.RoleID]*model.Role),
		byName:     make(map[string]model.RoleID),
		grants:     make(map[model.RoleID][]model.Grant),
		closures:   make(map[model.RoleID]map[model.RoleID]bool),
	}
}

// Recover replays the journal and rebuilds roles, edges, and grants
func (s *AccessService) Recover(ctx context.Context) error {
	err := s.journal.Replay(ctx, func(rec *journal.Record) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		switch rec.Kind {
		case journal.RecordCreateRole:
			role := *rec.Role
			if role.Parents == nil {
				role.Parents = make(map[model.RoleID]bool)
			}
			s.roles[role.RoleID] = &role
			s.byName[role.Name] = role.RoleID
			if role.RoleID >= s.nextRoleID {
				s.nextRoleID = role.RoleID + 1
			}
		case journal.RecordGrantRole:
			if child, ok := s.roles[rec.ChildRole]; ok {
				child.Parents[rec.ParentRole] = true
			}
		case journal.RecordGrant:
			s.grants[rec.Grant.RoleID] = append(s.grants[rec.Grant.RoleID], *rec.Grant)
		}
		return nil
	})
	if err != nil {
		return errors.JournalFailed("access recovery failed", err)
	}

	s.mu.Lock()
	s.closures = make(map[model.RoleID]map[model.RoleID]bool)
	roles := len(s.roles)
	s.mu.Unlock()

	s.logger.Info("Access control recovered", zap.Int("roles", roles))
	return nil
}

// CreateRole registers a new role with no parents and no grants
func (s *AccessService) CreateRole(ctx context.Context, name string) (*model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byName[name]; taken {
		return nil, errors.InvalidArgument(fmt.Sprintf("role name already in use: %s", name), nil).
			WithDetail("name", name)
	}

	role := &model.Role{
		RoleID:  s.nextRoleID,
		Name:    name,
		Parents: make(map[model.RoleID]bool),
	}

	if err := s.journal.Append(ctx, &journal.Record{
		Kind:      journal.RecordCreateRole,
		Timestamp: timeNow(),
		Role:      role,
	}); err != nil {
		return nil, errors.JournalFailed("failed to journal role create", err)
	}

	s.nextRoleID++
	s.roles[role.RoleID] = role
	s.byName[name] = role.RoleID

	s.logger.Info("Role created",
		zap.String("name", name),
		zap.Uint64("role_id", uint64(role.RoleID)))

	result := *role
	return &result, nil
}

// GrantRole adds an inheritance edge making child inherit from parent. The
// edge is rejected with a cycle error if parent already inherits from child
// (directly or transitively), so the graph stays a DAG.
func (s *AccessService) GrantRole(ctx context.Context, childID, parentID model.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	child, ok := s.roles[childID]
	if !ok {
		return errors.RoleNotFound(fmt.Sprintf("id=%d", childID))
	}
	parent, ok := s.roles[parentID]
	if !ok {
		return errors.RoleNotFound(fmt.Sprintf("id=%d", parentID))
	}
	if childID == parentID {
		return errors.CycleDetected(child.Name, parent.Name)
	}
	if child.Parents[parentID] {
		return nil // edge already present
	}

	// The new edge closes a cycle exactly when child is already an
	// ancestor of parent.
	if s.closureLocked(parentID)[childID] {
		return errors.CycleDetected(child.Name, parent.Name)
	}

	if err := s.journal.Append(ctx, &journal.Record{
		Kind:       journal.RecordGrantRole,
		Timestamp:  timeNow(),
		ChildRole:  childID,
		ParentRole: parentID,
	}); err != nil {
		return errors.JournalFailed("failed to journal role grant", err)
	}

	child.Parents[parentID] = true
	s.closures = make(map[model.RoleID]map[model.RoleID]bool)

	s.logger.Info("Role granted",
		zap.String("child", child.Name),
		zap.String("parent", parent.Name))
	return nil
}

// Grant confers a privilege on an object to a role
func (s *AccessService) Grant(ctx context.Context, roleID model.RoleID, privilege model.Privilege, ref model.ObjectRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[roleID]
	if !ok {
		return errors.RoleNotFound(fmt.Sprintf("id=%d", roleID))
	}

	grant := model.Grant{RoleID: roleID, Privilege: privilege, ObjectRef: ref}
	if err := s.journal.Append(ctx, &journal.Record{
		Kind:      journal.RecordGrant,
		Timestamp: timeNow(),
		Grant:     &grant,
	}); err != nil {
		return errors.JournalFailed("failed to journal grant", err)
	}

	s.grants[roleID] = append(s.grants[roleID], grant)

	s.logger.Info("Privilege granted",
		zap.String("role", role.Name),
		zap.String("privilege", string(privilege)),
		zap.String("object", string(ref)))
	return nil
}

// Check reports whether roleID holds privilege on ref, through its own
// grants or an ancestor's. An ownership grant on a parent object covers the
// objects beneath it; other privileges never do.
func (s *AccessService) Check(roleID model.RoleID, privilege model.Privilege, ref model.ObjectRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ChecksTotal.Inc()
	}

	role, ok := s.roles[roleID]
	if !ok {
		return errors.RoleNotFound(fmt.Sprintf("id=%d", roleID))
	}

	for ancestor := range s.closureLocked(roleID) {
		for _, grant := range s.grants[ancestor] {
			if grantCovers(grant, privilege, ref) {
				return nil
			}
		}
	}

	if s.metrics != nil {
		s.metrics.ChecksDeniedTotal.Inc()
	}
	return errors.PrivilegeDenied(role.Name, string(privilege), string(ref))
}

// RoleByName resolves a role by name
func (s *AccessService) RoleByName(name string) (*model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roleID, ok := s.byName[name]
	if !ok {
		return nil, errors.RoleNotFound(name)
	}
	result := *s.roles[roleID]
	return &result, nil
}

// closureLocked returns the ancestor closure of a role, the role itself
// included. Diamonds visit each ancestor once; results are memoized until
// the next edge change.
func (s *AccessService) closureLocked(roleID model.RoleID) map[model.RoleID]bool {
	if cached, ok := s.closures[roleID]; ok {
		return cached
	}

	closure := make(map[model.RoleID]bool)
	stack := []model.RoleID{roleID}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if closure[current] {
			continue
		}
		closure[current] = true
		if role, ok := s.roles[current]; ok {
			for parentID := range role.Parents {
				if !closure[parentID] {
					stack = append(stack, parentID)
				}
			}
		}
	}

	s.closures[roleID] = closure
	return closure
}

// grantCovers reports whether a single grant satisfies a privilege check
func grantCovers(grant model.Grant, privilege model.Privilege, ref model.ObjectRef) bool {
	if grant.Privilege != privilege && grant.Privilege != model.PrivilegeOwnership {
		return false
	}
	if grant.ObjectRef == ref {
		return true
	}
	return grant.Privilege.CoversChildren() &&
		strings.HasPrefix(string(ref), string(grant.ObjectRef)+".")
}
