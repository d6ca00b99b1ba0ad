package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gerritevents/pkg/gerrit"
	"gerritevents/pkg/storage"
	"gerritevents/pkg/storage/refupdates"
	"gerritevents/pkg/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to app config")
	driver := flag.String("driver", "", "Override subscriber driver (amqp|nats|kafka|sql|gochannel)")
	storageDriver := flag.String("storage-driver", "sqlite", "Ref update store driver (postgres|mysql|sqlite)")
	storageDSN := flag.String("storage-dsn", "", "Ref update store DSN, empty disables persistence")
	flag.Parse()

	log.SetPrefix("gerritevents/worker-example ")
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	subCfg, err := worker.LoadSubscriberConfig(*configPath)
	if err != nil {
		log.Fatalf("load subscriber config: %v", err)
	}
	if *driver != "" {
		subCfg.Driver = *driver
		subCfg.Drivers = nil
	}

	topics, err := worker.LoadTopicsFromConfig(*configPath)
	if err != nil {
		log.Fatalf("load topics: %v", err)
	}
	if len(topics) == 0 {
		topics = []string{"gerrit.ref-updated"}
	}

	var store storage.RefUpdateStore
	if *storageDSN != "" {
		opened, err := refupdates.Open(refupdates.Config{
			Driver:      *storageDriver,
			DSN:         *storageDSN,
			AutoMigrate: true,
		})
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		defer opened.Close()
		store = opened
	}

	sub, err := worker.BuildSubscriber(subCfg)
	if err != nil {
		log.Fatalf("subscriber: %v", err)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			log.Printf("subscriber close: %v", err)
		}
	}()

	wk := worker.New(
		worker.WithSubscriber(sub),
		worker.WithTopics(topics...),
		worker.WithConcurrency(5),
		worker.WithListener(worker.Listener{
			OnStart: func(ctx context.Context) { log.Println("worker started") },
			OnExit:  func(ctx context.Context) { log.Println("worker stopped") },
			OnError: func(ctx context.Context, evt *worker.Event, err error) {
				log.Printf("worker error: %v", err)
			},
		}),
	)

	wk.HandleRefUpdated(func(ctx context.Context, evt *worker.Event, update *gerrit.RefUpdate) error {
		ref, ok := update.Ref()
		if !ok {
			log.Printf("topic=%s %s without ref name", evt.Topic, update)
			return nil
		}
		log.Printf("topic=%s project=%s ref=%s %s -> %s", evt.Topic, update.GetProject(), ref, update.GetOldRev(), update.GetNewRev())
		if store == nil {
			return nil
		}
		record := storage.RecordFromRefUpdate(update, evt.Submitter)
		record.RequestID = evt.Metadata["request_id"]
		return store.SaveRefUpdate(ctx, record)
	})

	if err := wk.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
