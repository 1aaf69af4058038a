// Package consumer drives a broker client and feeds what it reads into a
// buffer.Engine.
//
// An Adapter moves through Disconnected, Connecting, Connected, Running,
// Stopping and back to Disconnected. Start connects with exponential
// backoff, subscribes and launches the ingest loop; Stop drains the buffer
// before disconnecting.
//
//	adapter, err := consumer.New(kafka.NewClientFactory(kafkaCfg, logger, nil), consumer.Config[string]{
//	    Client:        consumer.ClientConfig{ClientID: "kafbulk", Brokers: brokers, GroupID: "kafbulk"},
//	    Topic:         "events",
//	    BatchSize:     500,
//	    FlushInterval: 10 * time.Second,
//	    FlushAction:   store,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := adapter.Start(ctx); err != nil {
//	    _ = adapter.Stop(context.Background())
//	    return err
//	}
//	defer adapter.Stop(context.Background())
//
// Messages without a payload are skipped. Messages that fail to decode are
// logged, counted and handed to the DeadLetterPublisher when one is set.
package consumer
