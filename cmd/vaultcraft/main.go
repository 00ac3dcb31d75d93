package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"vaultcraft/internal/audit"
	"vaultcraft/internal/config"
	"vaultcraft/internal/platform"
	"vaultcraft/internal/vault"
)

const unlockAttempts = 3

// stdin carries read-ahead buffering across prompts: a fresh reader per
// prompt would swallow every piped line after the first.
var stdin *bufio.Reader

func stdinReader() *bufio.Reader {
	if stdin == nil {
		stdin = bufio.NewReader(os.Stdin)
	}
	return stdin
}

func main() {
	_ = platform.DisableCoreDumps()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "create":
		cmdCreate(os.Args[2:])
	case "set":
		cmdSet(os.Args[2:])
	case "get":
		cmdGet(os.Args[2:])
	case "keys":
		cmdKeys(os.Args[2:])
	case "files":
		cmdFiles(os.Args[2:])
	case "rm":
		cmdRemove(os.Args[2:])
	case "clear":
		cmdClear(os.Args[2:])
	case "use":
		cmdUse(os.Args[2:])
	case "dbs":
		cmdDBs(os.Args[2:])
	case "drop":
		cmdDrop(os.Args[2:])
	case "audit":
		cmdAudit(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Print(`vaultcraft commands:

  create <db>                          create a new vault
  set <key> <value>                    store an inline secret
  set <key> --file PATH [--type HINT]  store an encrypted file
  get <key> [--out DIR] [--copy]       fetch a secret or materialize a file
  keys                                 list entries in insertion order
  files                                list external-file entries
  rm <key>                             remove an entry
  clear                                remove every entry and blob
  use <db>                             set the default vault
  dbs                                  list vaults
  drop <db> [--yes]                    delete a vault and its blobs
  audit                                print and verify the operation journal

Common flags: --db NAME, --root DIR, --password-env VAR
`)
}

// flagSet builds the per-command flag set with the flags every command
// shares.
type common struct {
	fs      *flag.FlagSet
	root    *string
	db      *string
	passEnv *string
}

func flagSet(name string) common {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return common{
		fs:      fs,
		root:    fs.String("root", "", "vault root directory (default ~/.vaultcraft)"),
		db:      fs.String("db", "", "vault name (default from config)"),
		passEnv: fs.String("password-env", "", "read the password from this environment variable"),
	}
}

func (c common) resolve() (root, db string) {
	root = *c.root
	if root == "" {
		home, err := os.UserHomeDir()
		dieIf(err)
		root = filepath.Join(home, ".vaultcraft")
	}
	cfg, err := config.Load(root)
	dieIf(err)
	db = *c.db
	if db == "" {
		db = cfg.DefaultVault
	}
	return root, db
}

func cmdCreate(args []string) {
	c := flagSet("create")
	dieIf(c.fs.Parse(args))
	if c.fs.NArg() != 1 {
		die("usage: vaultcraft create <db>")
	}
	name := c.fs.Arg(0)
	root, _ := c.resolve()

	master := resolvePassword(c, "password for new vault: ", true)
	defer zero(master)

	v := vault.New(config.ContainerPath(root, name))
	err := v.Create(context.Background(), master)
	if errors.Is(err, vault.ErrAlreadyExists) {
		die(fmt.Sprintf("vault %q already exists", name))
	}
	dieIf(err)
	v.Lock()

	journal(root, name, "create")
	fmt.Printf("vault %q created under %s\n", name, root)
}

func cmdSet(args []string) {
	c := flagSet("set")
	file := c.fs.String("file", "", "store this file instead of an inline value")
	typeHint := c.fs.String("type", "file/bin", "declared type of --file (e.g. image/png)")
	dieIf(c.fs.Parse(args))

	ctx := context.Background()
	root, name := c.resolve()
	if *file == "" && c.fs.NArg() != 2 {
		die("usage: vaultcraft set <key> <value> | set <key> --file PATH")
	}
	if *file != "" && c.fs.NArg() != 1 {
		die("usage: vaultcraft set <key> --file PATH")
	}
	key := c.fs.Arg(0)

	v := openVault(c, root, name)
	defer v.Lock()

	if *file != "" {
		dieIf(v.SetFile(ctx, key, *file, *typeHint))
	} else {
		dieIf(v.Set(ctx, key, []byte(c.fs.Arg(1))))
	}
	dieIf(v.Save(ctx))

	journal(root, name, "set")
	fmt.Printf("stored %q\n", key)
}

func cmdGet(args []string) {
	c := flagSet("get")
	out := c.fs.String("out", "", "directory to materialize a file entry into")
	copyFlag := c.fs.Bool("copy", false, "copy an inline value to the clipboard instead of printing")
	dieIf(c.fs.Parse(args))
	if c.fs.NArg() != 1 {
		die("usage: vaultcraft get <key>")
	}
	key := c.fs.Arg(0)

	ctx := context.Background()
	root, name := c.resolve()
	v := openVault(c, root, name)
	defer v.Lock()

	if *out != "" {
		dieIf(os.MkdirAll(*out, 0700))
		path, err := v.GetFile(ctx, key, *out)
		dieIf(err)
		fmt.Println(path)
		return
	}

	val, err := v.Get(ctx, key)
	if errors.Is(err, vault.ErrKeyNotFound) {
		die(fmt.Sprintf("key %q not found", key))
	}
	dieIf(err)

	switch val.Kind {
	case vault.KindInline:
		if *copyFlag {
			dieIf(platform.NewClipboard().Copy(string(val.Data)))
			fmt.Println("copied to clipboard")
		} else {
			fmt.Println(string(val.Data))
		}
	case vault.KindExternalFile:
		fmt.Println(val.Path)
	}
}

func cmdKeys(args []string) {
	c := flagSet("keys")
	dieIf(c.fs.Parse(args))
	ctx := context.Background()
	root, name := c.resolve()
	v := openVault(c, root, name)
	defer v.Lock()

	infos, err := v.List(ctx)
	dieIf(err)
	for _, in := range infos {
		fmt.Printf("%s (%s)\n", in.Key, in.Kind)
	}
}

func cmdFiles(args []string) {
	c := flagSet("files")
	dieIf(c.fs.Parse(args))
	ctx := context.Background()
	root, name := c.resolve()
	v := openVault(c, root, name)
	defer v.Lock()

	infos, err := v.List(ctx)
	dieIf(err)
	for _, in := range infos {
		if in.Kind == vault.KindExternalFile {
			fmt.Println(in.Key)
		}
	}
}

func cmdRemove(args []string) {
	c := flagSet("rm")
	dieIf(c.fs.Parse(args))
	if c.fs.NArg() != 1 {
		die("usage: vaultcraft rm <key>")
	}
	key := c.fs.Arg(0)

	ctx := context.Background()
	root, name := c.resolve()
	v := openVault(c, root, name)
	defer v.Lock()

	err := v.Delete(ctx, key)
	if errors.Is(err, vault.ErrKeyNotFound) {
		die(fmt.Sprintf("key %q not found", key))
	}
	dieIf(err)
	dieIf(v.Save(ctx))

	journal(root, name, "delete")
	fmt.Printf("removed %q\n", key)
}

func cmdClear(args []string) {
	c := flagSet("clear")
	yes := c.fs.Bool("yes", false, "skip confirmation")
	dieIf(c.fs.Parse(args))

	ctx := context.Background()
	root, name := c.resolve()
	if !*yes && !confirm(fmt.Sprintf("remove every entry in %q? (action can't be undone)", name)) {
		fmt.Println("ignoring the clear request")
		return
	}

	v := openVault(c, root, name)
	defer v.Lock()
	dieIf(v.Clear(ctx))
	dieIf(v.Save(ctx))

	journal(root, name, "clear")
	fmt.Printf("vault %q cleared\n", name)
}

func cmdUse(args []string) {
	c := flagSet("use")
	dieIf(c.fs.Parse(args))
	if c.fs.NArg() != 1 {
		die("usage: vaultcraft use <db>")
	}
	name := c.fs.Arg(0)
	root, _ := c.resolve()

	if _, err := os.Stat(config.ContainerPath(root, name)); err != nil {
		die(fmt.Sprintf("vault %q not found, perhaps it doesn't exist at all?", name))
	}
	cfg, err := config.Load(root)
	dieIf(err)
	cfg.DefaultVault = name
	dieIf(config.Save(root, cfg))
	fmt.Printf("default vault set to %q\n", name)
}

func cmdDBs(args []string) {
	c := flagSet("dbs")
	dieIf(c.fs.Parse(args))
	root, def := c.resolve()
	names, err := config.ListVaults(root)
	dieIf(err)
	for _, n := range names {
		if n == def {
			fmt.Printf("%s (default)\n", n)
		} else {
			fmt.Println(n)
		}
	}
}

func cmdDrop(args []string) {
	c := flagSet("drop")
	yes := c.fs.Bool("yes", false, "skip confirmation")
	dieIf(c.fs.Parse(args))
	if c.fs.NArg() != 1 {
		die("usage: vaultcraft drop <db>")
	}
	name := c.fs.Arg(0)
	root, _ := c.resolve()

	dir := config.VaultDir(root, name)
	if _, err := os.Stat(dir); err != nil {
		die(fmt.Sprintf("vault %q doesn't exist at all", name))
	}
	if !*yes && !confirm(fmt.Sprintf("delete vault %q? (action can't be undone)", name)) {
		fmt.Println("ignoring the deletion request")
		return
	}
	// Container and blob directory are one logical unit; remove both.
	dieIf(os.RemoveAll(dir))
	fmt.Printf("vault %q removed\n", name)
}

func cmdAudit(args []string) {
	c := flagSet("audit")
	dieIf(c.fs.Parse(args))
	root, name := c.resolve()

	j, err := audit.Open(journalPath(root, name))
	dieIf(err)
	for _, e := range j.Entries() {
		fmt.Printf("%s  %s\n", time.Unix(e.TS, 0).Format(time.RFC3339), e.What)
	}
	dieIf(j.Verify())
	fmt.Println("journal chain verified")
}

// ============ helpers ============

// openVault unlocks the named vault, re-prompting on a wrong password up
// to unlockAttempts times with paced retries.
func openVault(c common, root, name string) vault.Vault {
	v := vault.New(config.ContainerPath(root, name))
	ctx := context.Background()
	limiter := rate.NewLimiter(rate.Every(time.Second), 1)

	for attempt := 1; ; attempt++ {
		master := resolvePassword(c, fmt.Sprintf("password for %q: ", name), false)
		dieIf(limiter.Wait(ctx))
		err := v.Unlock(ctx, master)
		zero(master)
		switch {
		case err == nil:
			return v
		case errors.Is(err, vault.ErrInvalidPassword) && *c.passEnv == "" && attempt < unlockAttempts:
			fmt.Fprintln(os.Stderr, "password is invalid, please try again")
		case errors.Is(err, vault.ErrInvalidPassword):
			die("invalid password")
		case errors.Is(err, vault.ErrBusy):
			die("vault is in use by another process")
		default:
			dieIf(err)
		}
	}
}

func resolvePassword(c common, prompt string, confirmNew bool) []byte {
	if *c.passEnv != "" {
		val, ok := os.LookupEnv(*c.passEnv)
		if !ok {
			die(fmt.Sprintf("environment variable %s is not set", *c.passEnv))
		}
		return []byte(val)
	}
	pw := promptSecret(prompt)
	if confirmNew {
		again := promptSecret("confirm password: ")
		if string(pw) != string(again) {
			zero(pw)
			zero(again)
			die("passwords do not match")
		}
		zero(again)
	}
	return pw
}

func promptSecret(prompt string) []byte {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		dieIf(err)
		return pw
	}
	// Piped stdin (tests, scripts): read one line.
	line, err := stdinReader().ReadString('\n')
	if err != nil && line == "" {
		dieIf(err)
	}
	return []byte(strings.TrimRight(line, "\r\n"))
}

func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	line, _ := stdinReader().ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}

func journalPath(root, name string) string {
	return filepath.Join(config.VaultDir(root, name), "journal")
}

func journal(root, name, what string) {
	j, err := audit.Open(journalPath(root, name))
	if err != nil {
		return
	}
	_, _ = j.Append(what)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func die(msg string) {
	fmt.Fprintln(os.Stderr, "error:", msg)
	os.Exit(1)
}

func dieIf(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
