/*
Package events implements an in-memory, non-blocking pub/sub broker for
notifying interested components (the reconciler, metrics collection,
audit logging) about engine-level activity: entity mutations, index
lifecycle changes, vector collection initialization, and checkpoint/
restore completion.

Publish is fire-and-forget: a full subscriber buffer drops the event
rather than blocking the publisher, trading guaranteed delivery for
throughput. This suits monitoring and reactive reconciliation, not
anything that needs an exactly-once guarantee — the CDC log already
owns that job.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			if event.Type == events.EventIndexRebuilt {
				// react
			}
		}
	}()

	broker.Publish(&events.Event{Type: events.EventEntityUpserted, Message: "users:u1 upserted"})
*/
package events
