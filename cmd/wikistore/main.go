// Command wikistore exercises the wiki store from the shell: edit and
// read articles, walk history, rename, search, manage users and move
// backups around.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	quill "github.com/quillwiki/quill"
	"github.com/quillwiki/quill/internal/config"
	"github.com/quillwiki/quill/pkg/types"
)

const usage = `usage: wikistore [-config file] <command> [args]

commands:
  create <article>             create an empty article
  edit <article> <author-id>   append a revision, content read from stdin
  show <article>               print the current revision
  history <article>            list all revisions
  rename <old> <new>           rename an article
  search <text>                full-text search over current revisions
  register <username>          register a user, password read from stdin
  registration <on|off>        toggle user registration
  backup <file>                write a backup archive
  restore <file>               load a backup archive
`

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	log := logrus.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Unknown log level %q", cfg.LogLevel)
	}
	log.SetLevel(level)

	ctx := context.Background()
	w, err := quill.New(ctx, quill.Config{
		DataDir:       cfg.DataDir,
		MinimumFreeGB: cfg.MinimumFreeGB,
		GCInterval:    cfg.GCInterval(),
		PostgresDSN:   cfg.PostgresDSN,
		Logger:        log,
	})
	if err != nil {
		log.Fatalf("Error opening wiki: %v", err)
	}
	defer w.Close()

	if err := run(ctx, w, log, args); err != nil {
		log.Fatalf("Error: %v", err)
	}
	w.DrainBackgroundWork()
}

func run(ctx context.Context, w *quill.Wiki, log *logrus.Logger, args []string) error {
	command, args := args[0], args[1:]
	switch command {
	case "create":
		if len(args) != 1 {
			return fmt.Errorf("create needs an article name")
		}
		id, err := w.Articles.Create(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("created %s (id %d)\n", args[0], id)
		return nil

	case "edit":
		if len(args) != 2 {
			return fmt.Errorf("edit needs an article name and an author id")
		}
		author, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid author id %q", args[1])
		}
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("error reading content: %w", err)
		}
		rev, err := w.EditArticle(ctx, args[0], types.UserID(author), string(content))
		if err != nil {
			return err
		}
		fmt.Printf("%s is now at revision %d\n", args[0], rev.Number)
		return nil

	case "show":
		if len(args) != 1 {
			return fmt.Errorf("show needs an article name")
		}
		_, revID, rev, ok, err := w.Articles.CurrentRevisionByName(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("article %q does not exist", args[0])
		}
		fmt.Printf("%s (revision %d, user %d, %s)\n\n%s\n",
			args[0], revID.Number, rev.Author, rev.Date.Format("2006-01-02 15:04:05"), rev.Content)
		return nil

	case "history":
		if len(args) != 1 {
			return fmt.Errorf("history needs an article name")
		}
		id, ok, err := w.Articles.IDByName(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("article %q does not exist", args[0])
		}
		entries, err := w.Articles.ListRevisions(ctx, id)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			fmt.Printf("%4d  user %-6d %s\n",
				entry.ID.Number, entry.Meta.Author, entry.Meta.Date.Format("2006-01-02 15:04:05"))
		}
		return nil

	case "rename":
		if len(args) != 2 {
			return fmt.Errorf("rename needs the old and the new name")
		}
		return w.RenameArticle(ctx, args[0], args[1])

	case "search":
		if len(args) != 1 {
			return fmt.Errorf("search needs a query")
		}
		results, err := w.Search(args[0])
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("%s (%s)\n    %s\n", r.Title, r.LastEdited.Format("2006-01-02"), r.Snippet)
		}
		return nil

	case "register":
		if len(args) != 1 {
			return fmt.Errorf("register needs a username")
		}
		fmt.Fprint(os.Stderr, "password: ")
		password, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("error reading password: %w", err)
		}
		id, err := w.RegisterUser(ctx, args[0], password[:len(password)-1])
		if err != nil {
			return err
		}
		log.WithField("id", id).Info("User registered")
		return nil

	case "registration":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return fmt.Errorf("registration needs 'on' or 'off'")
		}
		return w.SetRegistrationEnabled(ctx, args[0] == "on")

	case "backup":
		if len(args) != 1 {
			return fmt.Errorf("backup needs a target file")
		}
		f, err := os.OpenFile(args[0], os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			return fmt.Errorf("error creating backup file: %w", err)
		}
		if err := w.Backup(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()

	case "restore":
		if len(args) != 1 {
			return fmt.Errorf("restore needs an archive file")
		}
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("error opening archive: %w", err)
		}
		defer f.Close()
		return w.Restore(ctx, f)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
