// Package subset caps a service's instance (or instance-key) list to a
// connection-stable subset so a push fanout to a subscriber with a low
// MaxPushInstances budget doesn't reshuffle which instances it sees on
// every Notify — the same connID hashes to the same members as long as
// the ring membership doesn't change.
package subset

import "github.com/batata-io/batata/infra/transport/consistent"

// Subset picks num members of inss, keyed off selectKey (normally the
// subscribing connection's ID) so repeated calls for the same connection
// against an unchanged member set return the same subset. num <= 0 means
// "no cap" — the Config/Naming budget of 0 is a global config default,
// not a request to drop every instance.
func Subset[M consistent.Member](selectKey string, inss []M, num int) []M {
	if num <= 0 || len(inss) <= num {
		return inss
	}

	c := consistent.New[M]()
	c.NumberOfReplicas = 160
	c.UseFnv = true
	c.Set(inss)

	picked, err := c.GetN(selectKey, num)
	if err != nil {
		return inss
	}
	return picked
}
