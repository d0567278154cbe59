// Command cachectl is a debug CLI that exercises the cache core against a
// real SQLite file and the in-memory fake remote/decoder, grounded on
// cmd/bt/main.go's rootCmd/subcommand structure.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"filippo.io/age"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"filecache-core/internal/cache"
	"filecache-core/internal/config"
	"filecache-core/internal/decoder"
	"filecache-core/internal/query"
	"filecache-core/internal/remote"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	dbPath           string
	fixturePath      string
	decoderType      string
	identityPath     string
	identityPassword bool
)

func newCache() (*cache.Cache, remote.RemoteQuery, error) {
	cfg := config.Default()
	cfg.DatabasePath = dbPath

	fake := remote.NewMemoryRemote()
	if fixturePath != "" {
		raw, err := os.ReadFile(fixturePath)
		if err != nil {
			return nil, nil, fmt.Errorf("reading fixture: %w", err)
		}
		if err := remote.LoadFixture(fake, raw); err != nil {
			return nil, nil, fmt.Errorf("loading fixture: %w", err)
		}
	}

	var dec decoder.MetadataDecoder
	switch decoderType {
	case "age":
		ageDec := decoder.NewAgeDecoder()
		if identityPath != "" {
			identities, err := loadIdentities(identityPath, identityPassword)
			if err != nil {
				return nil, nil, fmt.Errorf("loading metadata identity: %w", err)
			}
			ageDec.Unlock(identities...)
		}
		dec = ageDec
	default:
		dec = decoder.PlainDecoder{}
	}

	c, err := cache.Open(cfg, fake, dec)
	if err != nil {
		return nil, nil, fmt.Errorf("opening cache: %w", err)
	}
	return c, fake, nil
}

// loadIdentities reads an age identity file at path. If the file itself is
// passphrase-protected (an age-encrypted identity, e.g. produced by `age
// -p`), promptPassword prompts on the controlling terminal for the
// passphrase and decrypts it first, the way age's own CLI does for
// passphrase-protected keys.
func loadIdentities(path string, promptPassword bool) ([]age.Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}

	if !promptPassword {
		return age.ParseIdentities(bytes.NewReader(raw))
	}

	fmt.Fprint(os.Stderr, "Enter passphrase for metadata identity: ")
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}

	scryptIdentity, err := age.NewScryptIdentity(string(passphrase))
	if err != nil {
		return nil, fmt.Errorf("building scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(raw), scryptIdentity)
	if err != nil {
		return nil, fmt.Errorf("decrypting identity file: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted identity file: %w", err)
	}
	return age.ParseIdentities(bytes.NewReader(plaintext))
}

var rootCmd = &cobra.Command{
	Use:   "cachectl",
	Short: "Inspect and exercise the filecache-core cache",
}

var refreshCmd = &cobra.Command{
	Use:   "refresh DIR_UUID",
	Short: "Refresh a directory from the remote collaborator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newCache()
		if err != nil {
			return err
		}
		defer c.Close()

		res, err := c.RefreshDir(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("upserted=%d swept=%d deferred=%d\n", res.Upserted, res.Swept, res.Deferred)
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls DIR_UUID",
	Short: "List a directory's non-stale children",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newCache()
		if err != nil {
			return err
		}
		defer c.Close()

		items, err := c.ListChildren(context.Background(), args[0], query.OrderBy{})
		if err != nil {
			return err
		}
		return printJSON(items)
	},
}

var catCmd = &cobra.Command{
	Use:   "cat UUID",
	Short: "Print a resolved object as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newCache()
		if err != nil {
			return err
		}
		defer c.Close()

		obj, err := c.GetObject(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printJSON(obj)
	},
}

var pathCmd = &cobra.Command{
	Use:   "path UUID",
	Short: "Resolve an item's absolute path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newCache()
		if err != nil {
			return err
		}
		defer c.Close()

		p, err := c.ResolvePath(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(p)
		return nil
	},
}

var recentsCmd = &cobra.Command{
	Use:   "recents",
	Short: "List items currently flagged recent",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newCache()
		if err != nil {
			return err
		}
		defer c.Close()

		items, err := c.Recents(context.Background())
		if err != nil {
			return err
		}
		return printJSON(items)
	},
}

var findChildCmd = &cobra.Command{
	Use:   "find-child PARENT_UUID NAME",
	Short: "Look up a single non-stale child by name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newCache()
		if err != nil {
			return err
		}
		defer c.Close()

		item, err := c.FindChild(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(item)
	},
}

var getRootCmd = &cobra.Command{
	Use:   "get-root",
	Short: "Print the root's accounting row",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newCache()
		if err != nil {
			return err
		}
		defer c.Close()

		root, err := c.GetRoot(context.Background())
		if err != nil {
			return err
		}
		return printJSON(root)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete UUID",
	Short: "Delete an item (and, if it's a directory, its non-orphan subtree)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newCache()
		if err != nil {
			return err
		}
		defer c.Close()

		return c.Delete(context.Background(), args[0])
	},
}

var (
	searchMinSize     int64
	searchMimeGlobs   []string
	searchMinModified string
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search items by name substring, narrowed by filter flags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newCache()
		if err != nil {
			return err
		}
		defer c.Close()

		filter := query.SearchFilter{MimeGlobs: searchMimeGlobs, MinSize: searchMinSize}
		if searchMinModified != "" {
			t, err := time.Parse(time.RFC3339, searchMinModified)
			if err != nil {
				return fmt.Errorf("parsing --min-modified: %w", err)
			}
			filter.MinModified = &t
		}

		items, err := c.Search(context.Background(), args[0], filter, query.OrderBy{})
		if err != nil {
			return err
		}
		return printJSON(items)
	},
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", ":memory:", "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&fixturePath, "fixture", "", "JSON fixture file to seed the fake remote from")
	rootCmd.PersistentFlags().StringVar(&decoderType, "decoder", "plain", "metadata decoder to use: plain or age")
	rootCmd.PersistentFlags().StringVar(&identityPath, "identity", "", "age identity file to unlock the age decoder with")
	rootCmd.PersistentFlags().BoolVar(&identityPassword, "identity-password", false, "prompt for a passphrase to decrypt --identity")

	searchCmd.Flags().Int64Var(&searchMinSize, "min-size", 0, "minimum file size in bytes")
	searchCmd.Flags().StringSliceVar(&searchMimeGlobs, "mime-glob", nil, "SQLite GLOB pattern to match decoded mime against (repeatable)")
	searchCmd.Flags().StringVar(&searchMinModified, "min-modified", "", "RFC3339 timestamp; files compare decoded_modified, dirs compare decoded_created")

	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(pathCmd)
	rootCmd.AddCommand(recentsCmd)
	rootCmd.AddCommand(findChildCmd)
	rootCmd.AddCommand(getRootCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(searchCmd)
}
