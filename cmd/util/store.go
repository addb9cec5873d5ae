package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/ValentinKolb/docdb/lib/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// --------------------------------------------------------------------------
// Keys and Documents
// --------------------------------------------------------------------------

// ParseKey splits a slash separated key ("users/alice") into its segments.
// Leading and trailing slashes are ignored, "" and "/" are the root.
func ParseKey(s string) []string {
	s = strings.Trim(s, "/")
	if s == "" {
		return nil
	}
	return strings.Split(s, "/")
}

// ReadDocument parses a JSON object given on the command line. "-" reads
// the document from in.
func ReadDocument(arg string, in io.Reader) (db.Document, error) {
	data := []byte(arg)
	if arg == "-" {
		var err error
		if data, err = io.ReadAll(in); err != nil {
			return nil, fmt.Errorf("failed to read document: %w", err)
		}
	}
	return db.Decode(data)
}

// PrintDocument writes doc to w in the given format (json or yaml)
func PrintDocument(w io.Writer, doc db.Document, format string) error {
	if doc == nil {
		doc = db.Document{}
	}
	switch format {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(map[string]any(doc)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("invalid format %s (expected json or yaml)", format)
	}
}

// --------------------------------------------------------------------------
// Store Commands
// --------------------------------------------------------------------------

// NewStoreCommands creates the document commands (create, get, put, del,
// exists, ls, info) working on the store returned by getStore. getStore is
// called when a command runs, after the pre run hooks of the parent.
func NewStoreCommands(getStore func() store.IStore) []*cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create [key] [json]",
		Short: "Creates a new document, fails if the key exists",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := db.Document{}
			if len(args) == 2 {
				var err error
				if doc, err = ReadDocument(args[1], cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if err := getStore().Create(ParseKey(args[0]), doc); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "created successfully")
			return nil
		},
	}

	getCmd := &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the document stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, ok, err := getStore().Get(ParseKey(args[0]))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("key %s: %w", args[0], db.ErrNotFound)
			}
			format, _ := cmd.Flags().GetString("format")
			return PrintDocument(cmd.OutOrStdout(), doc, format)
		},
	}
	getCmd.Flags().String("format", "json", WrapString("Output format (json, yaml)"))

	putCmd := &cobra.Command{
		Use:   "put [key] [json]",
		Short: "Creates or replaces the document stored under a key (- reads the document from stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := ReadDocument(args[1], cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := getStore().Put(ParseKey(args[0]), doc); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "put successfully")
			return nil
		},
	}

	delCmd := &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes the document stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := getStore().Delete(ParseKey(args[0])); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted successfully")
			return nil
		},
	}

	existsCmd := &cobra.Command{
		Use:   "exists [key]",
		Short: "Checks if a document exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := getStore().Exists(ParseKey(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "key=%s, found=%t\n", args[0], found)
			return nil
		},
	}

	lsCmd := &cobra.Command{
		Use:   "ls [prefix]",
		Short: "Lists the documents and namespaces below a prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var prefix []string
			if len(args) == 1 {
				prefix = ParseKey(args[0])
			}
			names, err := getStore().List(prefix)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Prints information about the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := getStore().GetDBInfo()
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(infoView(info), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	return []*cobra.Command{createCmd, getCmd, putCmd, delCmd, existsCmd, lsCmd, infoCmd}
}

// infoView renders the feature flags by name
func infoView(info db.DatabaseInfo) map[string]any {
	features := make([]string, 0, len(info.SupportedFeatures))
	for _, f := range info.SupportedFeatures {
		features = append(features, f.String())
	}
	return map[string]any{
		"db_type":            info.DbType,
		"size_bytes":         info.SizeBytes,
		"supported_features": features,
		"metadata":           info.Metadata,
	}
}

// ExitCode maps an error returned by a command to the exit code of docdb
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, db.ErrNotFound):
		return 2
	case errors.Is(err, db.ErrAlreadyExists), errors.Is(err, db.ErrBusy):
		return 3
	default:
		return 1
	}
}
