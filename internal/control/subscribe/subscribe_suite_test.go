package subscribe_test

import (
	"context"
	"net"
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/zenithdb/pageserver/internal/control/subscribe"
	"github.com/zenithdb/pageserver/internal/ids"
)

func TestSubscribe(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "callmemaybe subscription suite")
}

func fakeDialer(conns chan net.Conn) subscribe.Dialer {
	return func(ctx context.Context, connstr string) (net.Conn, error) {
		client, server := net.Pipe()
		conns <- server
		return client, nil
	}
}

var _ = Describe("Registry", func() {
	var (
		reg      *subscribe.Registry
		tenant   ids.TenantId
		timeline ids.TimelineId
		conns    chan net.Conn
	)

	BeforeEach(func() {
		tenant = ids.TenantId{0x01}
		timeline = ids.TimelineId{0x02}
		conns = make(chan net.Conn, 8)
		var err error
		reg, err = subscribe.New(fakeDialer(conns))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(reg.Close()).To(Succeed())
	})

	It("starts a worker on first registration", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		isNew, err := reg.Subscribe(ctx, tenant, timeline, "peer:5432")
		Expect(err).NotTo(HaveOccurred())
		Expect(isNew).To(BeTrue())

		var server net.Conn
		Eventually(conns, time.Second).Should(Receive(&server))
		server.Close()
	})

	It("is idempotent per (tenant, timeline)", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		isNew1, err := reg.Subscribe(ctx, tenant, timeline, "peer:5432")
		Expect(err).NotTo(HaveOccurred())
		Expect(isNew1).To(BeTrue())

		var server net.Conn
		Eventually(conns, time.Second).Should(Receive(&server))
		defer server.Close()

		isNew2, err := reg.Subscribe(ctx, tenant, timeline, "peer:5432")
		Expect(err).NotTo(HaveOccurred())
		Expect(isNew2).To(BeFalse())
		Expect(conns).To(HaveLen(0))
	})
})
