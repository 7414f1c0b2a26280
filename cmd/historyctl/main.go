// historyctl is a local maintenance tool for the history records the API
// writes. It reads the same file backend the server uses, so it must not run
// against a live server mid-write.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"promptpix/internal/domain"
	"promptpix/internal/history"
)

func main() {
	var (
		pathFlag   string
		listFlag   string
		showFlag   string
		deleteFlag string
		jsonFlag   bool
	)
	flag.StringVar(&pathFlag, "path", "./data", "history directory (HISTORY_PATH of the server)")
	flag.StringVar(&listFlag, "list", "", "list a collection: singles or batches")
	flag.StringVar(&showFlag, "show", "", "print one record by id")
	flag.StringVar(&deleteFlag, "delete", "", "delete one record by id")
	flag.BoolVar(&jsonFlag, "json", false, "emit JSON instead of a summary")
	flag.Parse()

	backend, err := history.NewFileBackend(strings.TrimSpace(pathFlag))
	if err != nil {
		exitWithError(err)
	}
	store := history.NewStore(backend, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Load(ctx); err != nil {
		exitWithError(fmt.Errorf("load history: %w", err))
	}

	switch {
	case listFlag != "":
		err = list(store, strings.ToLower(strings.TrimSpace(listFlag)), jsonFlag)
	case showFlag != "":
		err = show(store, strings.TrimSpace(showFlag))
	case deleteFlag != "":
		err = remove(ctx, store, strings.TrimSpace(deleteFlag))
	default:
		err = errors.New("one of -list, -show or -delete is required")
	}
	if err != nil {
		exitWithError(err)
	}
}

func list(store *history.Store, collection string, asJSON bool) error {
	switch collection {
	case "singles":
		items := store.Singles()
		if asJSON {
			return printJSON(items)
		}
		for _, item := range items {
			fmt.Printf("%s  rating=%s  %s\n", item.ID, ratingLabel(item.Rating), truncate(item.Prompt, 72))
		}
		fmt.Printf("%d record(s)\n", len(items))
	case "batches":
		items := store.Batches()
		if asJSON {
			return printJSON(items)
		}
		for _, item := range items {
			fmt.Printf("%s  %s  %d item(s)\n", item.ID, item.Timestamp, len(item.Results))
		}
		fmt.Printf("%d record(s)\n", len(items))
	default:
		return fmt.Errorf("unknown collection %q (want singles or batches)", collection)
	}
	return nil
}

func show(store *history.Store, id string) error {
	if item, err := store.SingleByID(id); err == nil {
		return printJSON(item)
	}
	item, err := store.BatchByID(id)
	if err != nil {
		return fmt.Errorf("no record with id %q", id)
	}
	return printJSON(item)
}

func remove(ctx context.Context, store *history.Store, id string) error {
	if err := store.RemoveSingle(ctx, id); err == nil {
		fmt.Printf("deleted single record %s\n", id)
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if err := store.RemoveBatch(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("no record with id %q", id)
		}
		return err
	}
	fmt.Printf("deleted batch record %s\n", id)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ratingLabel(r *domain.PromptRating) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", r.Score)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
