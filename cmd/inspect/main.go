package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

// Offline dump of the chat store. Opens the database read-only so it can
// run against a live server's files without taking the lock.
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (user:, chat:, pair:, msg:)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			rawKey := string(item.Key())

			err := item.Value(func(v []byte) error {
				recordType, timestamp, detail := describe(rawKey, v)
				table.Append([]string{rawKey, recordType, timestamp, detail})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

// describe decodes a record by its key namespace. Unknown namespaces and
// undecodable values fall back to a raw size line instead of aborting
// the whole dump.
func describe(key string, val []byte) (recordType, timestamp, detail string) {
	recordType = "RAW"
	timestamp = "--:--:--"
	detail = fmt.Sprintf("Size: %d bytes", len(val))

	switch {
	case strings.HasPrefix(key, "user:"):
		var record struct {
			Name    string `json:"name"`
			Email   string `json:"email"`
			Friends []struct {
				PeerEmail string `json:"peer_email"`
			} `json:"friends"`
		}
		if err := json.Unmarshal(val, &record); err != nil {
			return
		}
		recordType = "USER"
		detail = fmt.Sprintf("%s <%s> friends=%d", record.Name, record.Email, len(record.Friends))

	case strings.HasPrefix(key, "chat:"):
		var record struct {
			Members [2]string `json:"members"`
		}
		if err := json.Unmarshal(val, &record); err != nil {
			return
		}
		recordType = "CHAT"
		detail = fmt.Sprintf("%s | %s", record.Members[0], record.Members[1])

	case strings.HasPrefix(key, "pair:"):
		recordType = "PAIR"
		detail = string(val)

	case strings.HasPrefix(key, "msg:"):
		var record struct {
			Sender string `json:"sender"`
			Text   string `json:"text"`
			At     int64  `json:"at"`
		}
		if err := json.Unmarshal(val, &record); err != nil {
			return
		}
		recordType = "MESSAGE"
		timestamp = time.Unix(0, record.At).Format("15:04:05")
		detail = fmt.Sprintf("%s: %s", record.Sender, record.Text)
	}
	return
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		// A dirty value log needs one writable open to truncate it.
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}

			db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
