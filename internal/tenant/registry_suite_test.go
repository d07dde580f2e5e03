package tenant_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/zenithdb/pageserver/internal/ids"
	"github.com/zenithdb/pageserver/internal/perr"
	"github.com/zenithdb/pageserver/internal/repo/memrepo"
	"github.com/zenithdb/pageserver/internal/tenant"
)

func TestTenant(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "tenant registry suite")
}

var _ = Describe("Registry", func() {
	var (
		reg *tenant.Registry
		id  ids.TenantId
	)

	BeforeEach(func() {
		reg = tenant.New()
		id = ids.TenantId{0x11}
	})

	It("returns ResourceNotFound for an unregistered tenant", func() {
		_, err := reg.Get(id)
		Expect(perr.Is(err, perr.KindResourceNotFound)).To(BeTrue())
	})

	It("makes an inserted tenant visible to a subsequent lookup", func() {
		Expect(reg.Insert(id, memrepo.New())).To(Succeed())
		got, err := reg.Get(id)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).NotTo(BeNil())
	})

	It("lists every registered tenant", func() {
		Expect(reg.Insert(id, memrepo.New())).To(Succeed())
		Expect(reg.List()).To(ContainElement(id))
	})

	It("rejects a double insert as a conflict, leaving state unchanged", func() {
		Expect(reg.Insert(id, memrepo.New())).To(Succeed())
		err := reg.Insert(id, memrepo.New())
		Expect(perr.Is(err, perr.KindInvariantViolation)).To(BeTrue())
		Expect(reg.List()).To(HaveLen(1))
	})
})
