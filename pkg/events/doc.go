/*
Package events provides an in-memory broker for lifecycle events.

Components publish challenge and payment events (challenge.failed,
payment.succeeded, ...) and the API streams them to websocket clients.
Publishing never blocks: the broker buffers 100 events centrally and
50 per subscriber, dropping for anyone who falls behind. Delivery is
best effort and carries no correctness; everything authoritative lives
in the store.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for ev := range sub {
			fmt.Printf("%s %s\n", ev.Type, ev.ChallengeID)
		}
	}()
*/
package events
