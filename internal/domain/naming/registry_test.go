package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batata-io/batata/internal/transport"
)

func svcKey(name string) transport.ServiceKey {
	return transport.ServiceKey{Namespace: "ns", Group: "grp", Service: name}
}

func TestRegisterAndQuery(t *testing.T) {
	r := NewRegistry()
	key := svcKey("svc-a")

	rev := r.Register(key, transport.InstanceRegister, Instance{IP: "10.0.0.1", Port: 8080, Healthy: true})
	assert.Equal(t, uint64(1), rev)

	instances, queryRev := r.Query(key, nil, false)
	require.Len(t, instances, 1)
	assert.Equal(t, "10.0.0.1", instances[0].IP)
	assert.Equal(t, uint64(1), queryRev)
}

func TestQueryHealthyOnlyFilters(t *testing.T) {
	r := NewRegistry()
	key := svcKey("svc-b")
	r.Register(key, transport.InstanceRegister, Instance{IP: "10.0.0.1", Port: 1, Healthy: true})
	r.Register(key, transport.InstanceRegister, Instance{IP: "10.0.0.2", Port: 2, Healthy: false})

	instances, _ := r.Query(key, nil, true)
	require.Len(t, instances, 1)
	assert.Equal(t, "10.0.0.1", instances[0].IP)
}

func TestQueryUnknownServiceReturnsEmpty(t *testing.T) {
	r := NewRegistry()
	instances, rev := r.Query(svcKey("missing"), nil, false)
	assert.Nil(t, instances)
	assert.Equal(t, uint64(0), rev)
}

func TestDeregisterRemovesInstance(t *testing.T) {
	r := NewRegistry()
	key := svcKey("svc-c")
	r.Register(key, transport.InstanceRegister, Instance{IP: "10.0.0.1", Port: 1})
	r.Register(key, transport.InstanceDeregister, Instance{IP: "10.0.0.1", Port: 1})

	instances, _ := r.Query(key, nil, false)
	assert.Empty(t, instances)
}

func TestBatchRegisterRejectsMixedEphemeral(t *testing.T) {
	r := NewRegistry()
	key := svcKey("svc-d")
	_, err := r.BatchRegister(key, transport.InstanceRegister, []transport.InstanceDTO{
		{IP: "10.0.0.1", Port: 1, Ephemeral: true},
		{IP: "10.0.0.2", Port: 2, Ephemeral: false},
	})
	require.Error(t, err)
}

func TestBatchRegisterRejectsEmpty(t *testing.T) {
	r := NewRegistry()
	_, err := r.BatchRegister(svcKey("svc-e"), transport.InstanceRegister, nil)
	assert.Error(t, err)
}

func TestBatchRegisterAppliesHomogeneousBatch(t *testing.T) {
	r := NewRegistry()
	key := svcKey("svc-f")
	rev, err := r.BatchRegister(key, transport.InstanceRegister, []transport.InstanceDTO{
		{IP: "10.0.0.1", Port: 1, Ephemeral: true},
		{IP: "10.0.0.2", Port: 2, Ephemeral: true},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rev)

	instances, _ := r.Query(key, nil, false)
	assert.Len(t, instances, 2)
}

func TestListPaginatesAndMatchesPattern(t *testing.T) {
	r := NewRegistry()
	r.Register(svcKey("alpha"), transport.InstanceRegister, Instance{IP: "1.1.1.1", Port: 1})
	r.Register(svcKey("alpine"), transport.InstanceRegister, Instance{IP: "1.1.1.2", Port: 1})
	r.Register(svcKey("beta"), transport.InstanceRegister, Instance{IP: "1.1.1.3", Port: 1})

	page, total, hasMore := r.List("ns", "grp", "al*", 0, 10)
	assert.Equal(t, 2, total)
	assert.False(t, hasMore)
	assert.ElementsMatch(t, []string{"alpha", "alpine"}, page)
}

func TestListPaginationHasMore(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"a", "b", "c"} {
		r.Register(svcKey(name), transport.InstanceRegister, Instance{IP: "1.1.1.1", Port: 1})
	}
	page, total, hasMore := r.List("ns", "grp", "", 0, 2)
	assert.Equal(t, 3, total)
	assert.True(t, hasMore)
	assert.Len(t, page, 2)
}

func TestDeregisterByConnectionRemovesOnlyEphemeralOwned(t *testing.T) {
	r := NewRegistry()
	key := svcKey("svc-g")
	r.Register(key, transport.InstanceRegister, Instance{IP: "10.0.0.1", Port: 1, Ephemeral: true, ConnID: "conn-1"})
	r.Register(key, transport.InstanceRegister, Instance{IP: "10.0.0.2", Port: 2, Ephemeral: false, ConnID: "conn-1"})
	r.Register(key, transport.InstanceRegister, Instance{IP: "10.0.0.3", Port: 3, Ephemeral: true, ConnID: "conn-2"})

	r.DeregisterByConnection("conn-1")

	instances, _ := r.Query(key, nil, false)
	require.Len(t, instances, 2)
	for _, in := range instances {
		assert.NotEqual(t, "10.0.0.1", in.IP)
	}
}

func TestOnChangeFiresAfterRegister(t *testing.T) {
	r := NewRegistry()
	var gotKey transport.ServiceKey
	var gotRev uint64
	r.OnChange(func(k transport.ServiceKey, rev uint64) {
		gotKey, gotRev = k, rev
	})

	key := svcKey("svc-h")
	r.Register(key, transport.InstanceRegister, Instance{IP: "1.1.1.1", Port: 1})
	assert.Equal(t, key, gotKey)
	assert.Equal(t, uint64(1), gotRev)
}

func TestFuzzyWatchMatchesPrefixPattern(t *testing.T) {
	r := NewRegistry()
	r.Register(svcKey("order-svc"), transport.InstanceRegister, Instance{IP: "1.1.1.1", Port: 1})
	r.Register(svcKey("other-svc"), transport.InstanceRegister, Instance{IP: "1.1.1.2", Port: 1})

	names := r.FuzzyWatch("ns", "order*", false)
	assert.Equal(t, []string{"order-svc"}, names)
}
