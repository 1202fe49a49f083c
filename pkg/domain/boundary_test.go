package domain_test

import (
	"testing"

	"ticketcore/testutil"
)

func TestDomainImportsStayPublic(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden,
		"pkg/domain is the public contract and must not depend on internal packages")
	testutil.AssertNoDirectImports(t, ".", testutil.EngineImportForbidden,
		"pkg/domain must not depend on the engine")
}
