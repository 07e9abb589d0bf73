package service

import (
	"context"
	"testing"

	"github.com/strata-db/strata/internal/errors"
	"github.com/strata-db/strata/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDirectGrant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	analyst, err := h.access.CreateRole(ctx, "analyst")
	require.NoError(t, err)
	require.NoError(t, h.access.Grant(ctx, analyst.RoleID, model.PrivilegeSelect, tableRef("orders")))

	assert.NoError(t, h.access.Check(analyst.RoleID, model.PrivilegeSelect, tableRef("orders")))

	err = h.access.Check(analyst.RoleID, model.PrivilegeInsert, tableRef("orders"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodePrivilegeDenied))

	err = h.access.Check(analyst.RoleID, model.PrivilegeSelect, tableRef("payments"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodePrivilegeDenied))
}

func TestCheckInheritsThroughDiamond(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// root is reachable from leaf through two distinct paths.
	root, err := h.access.CreateRole(ctx, "root")
	require.NoError(t, err)
	left, err := h.access.CreateRole(ctx, "left")
	require.NoError(t, err)
	right, err := h.access.CreateRole(ctx, "right")
	require.NoError(t, err)
	leaf, err := h.access.CreateRole(ctx, "leaf")
	require.NoError(t, err)

	require.NoError(t, h.access.GrantRole(ctx, left.RoleID, root.RoleID))
	require.NoError(t, h.access.GrantRole(ctx, right.RoleID, root.RoleID))
	require.NoError(t, h.access.GrantRole(ctx, leaf.RoleID, left.RoleID))
	require.NoError(t, h.access.GrantRole(ctx, leaf.RoleID, right.RoleID))

	require.NoError(t, h.access.Grant(ctx, root.RoleID, model.PrivilegeSelect, tableRef("orders")))

	assert.NoError(t, h.access.Check(leaf.RoleID, model.PrivilegeSelect, tableRef("orders")))
	assert.NoError(t, h.access.Check(left.RoleID, model.PrivilegeSelect, tableRef("orders")))

	// Inheritance is upward only.
	err = h.access.Check(root.RoleID, model.PrivilegeInsert, tableRef("orders"))
	require.Error(t, err)
}

func TestGrantRoleRejectsCycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, err := h.access.CreateRole(ctx, "a")
	require.NoError(t, err)
	b, err := h.access.CreateRole(ctx, "b")
	require.NoError(t, err)
	c, err := h.access.CreateRole(ctx, "c")
	require.NoError(t, err)

	require.NoError(t, h.access.GrantRole(ctx, a.RoleID, b.RoleID))
	require.NoError(t, h.access.GrantRole(ctx, b.RoleID, c.RoleID))

	// c inheriting from a would close a cycle through b.
	err = h.access.GrantRole(ctx, c.RoleID, a.RoleID)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCycleDetected))

	// Self edges are cycles too.
	err = h.access.GrantRole(ctx, a.RoleID, a.RoleID)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCycleDetected))

	// The graph is unchanged and still usable.
	require.NoError(t, h.access.Grant(ctx, c.RoleID, model.PrivilegeSelect, tableRef("orders")))
	assert.NoError(t, h.access.Check(a.RoleID, model.PrivilegeSelect, tableRef("orders")))
}

func TestOwnershipCoversChildObjects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	owner, err := h.access.CreateRole(ctx, "owner")
	require.NoError(t, err)
	require.NoError(t, h.access.Grant(ctx, owner.RoleID, model.PrivilegeOwnership, RefTables))

	// Ownership of the parent covers any privilege on nested objects.
	assert.NoError(t, h.access.Check(owner.RoleID, model.PrivilegeSelect, tableRef("orders")))
	assert.NoError(t, h.access.Check(owner.RoleID, model.PrivilegeInsert, tableRef("payments")))
	assert.NoError(t, h.access.Check(owner.RoleID, model.PrivilegeOwnership, tableRef("orders")))

	// A non-ownership grant on the parent covers nothing beneath it.
	reader, err := h.access.CreateRole(ctx, "reader")
	require.NoError(t, err)
	require.NoError(t, h.access.Grant(ctx, reader.RoleID, model.PrivilegeUsage, RefTables))
	err = h.access.Check(reader.RoleID, model.PrivilegeSelect, tableRef("orders"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodePrivilegeDenied))
}

func TestClosureInvalidatedByNewEdge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	parent, err := h.access.CreateRole(ctx, "parent")
	require.NoError(t, err)
	child, err := h.access.CreateRole(ctx, "child")
	require.NoError(t, err)
	require.NoError(t, h.access.Grant(ctx, parent.RoleID, model.PrivilegeSelect, tableRef("orders")))

	// Memoize the closure before the edge exists.
	err = h.access.Check(child.RoleID, model.PrivilegeSelect, tableRef("orders"))
	require.Error(t, err)

	require.NoError(t, h.access.GrantRole(ctx, child.RoleID, parent.RoleID))
	assert.NoError(t, h.access.Check(child.RoleID, model.PrivilegeSelect, tableRef("orders")))
}

func TestAccessRecover(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	h := newHarnessAt(t, dir)
	role, err := h.access.CreateRole(ctx, "analyst")
	require.NoError(t, err)
	parent, err := h.access.CreateRole(ctx, "parent")
	require.NoError(t, err)
	require.NoError(t, h.access.GrantRole(ctx, role.RoleID, parent.RoleID))
	require.NoError(t, h.access.Grant(ctx, parent.RoleID, model.PrivilegeSelect, tableRef("orders")))
	require.NoError(t, h.journal.Close())

	h2 := newHarnessAt(t, dir)
	require.NoError(t, h2.access.Recover(ctx))

	recovered, err := h2.access.RoleByName("analyst")
	require.NoError(t, err)
	assert.Equal(t, role.RoleID, recovered.RoleID)
	assert.NoError(t, h2.access.Check(recovered.RoleID, model.PrivilegeSelect, tableRef("orders")))
}
