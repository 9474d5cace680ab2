// Command replay inspects a transaction log offline. It prints one line per
// entry so operators can audit what a recovering engine would apply.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"curricula/application/ports"
	"curricula/infrastructure/persistence/txlog"
)

func main() {
	dataDir := flag.String("data-dir", "./data", "directory holding the transaction log")
	kind := flag.String("kind", "", "only print entries of this kind")
	payload := flag.Bool("payload", false, "include the raw JSON payload")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	fileLog, err := txlog.Open(*dataDir, false, logger)
	if err != nil {
		log.Fatalf("opening transaction log: %v", err)
	}
	defer fileLog.Close()

	var count int
	err = fileLog.Replay(context.Background(), func(entry ports.LogEntry) error {
		if *kind != "" && entry.Kind != *kind {
			return nil
		}
		count++
		if *payload {
			fmt.Printf("%d\t%s\t%s\t%s\n", entry.Seq, entry.RecordedAt.Format("2006-01-02T15:04:05Z07:00"), entry.Kind, entry.Payload)
		} else {
			fmt.Printf("%d\t%s\t%s\n", entry.Seq, entry.RecordedAt.Format("2006-01-02T15:04:05Z07:00"), entry.Kind)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("replay: %v", err)
	}

	fmt.Fprintf(os.Stderr, "%d entries\n", count)
}
