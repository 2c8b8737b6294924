// Command flasky is a CLI client for the Flasky blog API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"
)

// ---- config/token store ----

type tokenFile struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "flasky")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "flasky")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{Token: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.Token == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (run `flasky -e <email> token`)")
	}
	return tf.Token, nil
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// readPassword prompts without echo when stdin is a terminal.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("password required (-p)")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `flasky CLI
Usage:
  flasky -addr URL [-e email [-p password]] [-cacert file | -insecure] <cmd> [args]

Without -e the saved token is used; without either the call is anonymous.

Commands:
  version
  register   -u <username>                         (uses -e and -p)
  token                                            (saves token)
  confirm    -t <token>
  whoami
  posts      [-page n] [-user <id>] [-timeline]
  post       -id <uuid>
  new-post   -file <markdown|->
  edit-post  -id <uuid> -file <markdown|->
  comment    -id <post uuid> -file <markdown|->
  follow     -id <user uuid>
  unfollow   -id <user uuid>
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main resolves credentials and dispatches the subcommand.
func main() {
	addr := flag.String("addr", "http://localhost:5000", "server URL")
	email := flag.String("e", "", "account email")
	password := flag.String("p", "", "account password")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	insecure := flag.Bool("insecure", false, "skip cert verify (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	if cmd == "version" {
		fmt.Printf("flasky %s (%s)\n", version, buildDate)
		return
	}

	c, err := newClient(*addr, *caPath, *insecure)
	if err != nil {
		fail(err)
	}
	if *email != "" {
		c.email, c.password = *email, *password
		if c.password == "" {
			if c.password, err = readPassword(); err != nil {
				fail(err)
			}
		}
	} else if tok, err := loadToken(); err == nil {
		c.token = tok
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, c, cmd, flag.Args()[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			usage()
		}
		fail(err)
	}
}

var errUsage = errors.New("usage")

// run executes one subcommand against c, printing results to out.
func run(ctx context.Context, c *client, cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	id := fs.String("id", "", "resource id")
	file := fs.String("file", "", "markdown body file, - for stdin")
	username := fs.String("u", "", "username")
	tok := fs.String("t", "", "token")
	page := fs.Int("page", 1, "page number")
	user := fs.String("user", "", "user id")
	timeline := fs.Bool("timeline", false, "posts of followed users")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}

	need := func(v *string, name string) error {
		if *v == "" {
			return fmt.Errorf("%s: need %s", cmd, name)
		}
		return nil
	}
	body := func() (map[string]string, error) {
		if err := need(file, "-file"); err != nil {
			return nil, err
		}
		b, err := readAll(*file)
		if err != nil {
			return nil, err
		}
		return map[string]string{"body": strings.TrimRight(string(b), "\n")}, nil
	}

	var res map[string]any
	switch cmd {
	case "register":
		if c.email == "" || c.password == "" {
			return fmt.Errorf("register: need -e and -p")
		}
		if err := need(username, "-u"); err != nil {
			return err
		}
		in := map[string]string{"email": c.email, "username": *username, "password": c.password}
		c.email = ""
		if err := c.do(ctx, http.MethodPost, "/auth/register", in, &res); err != nil {
			return err
		}

	case "token":
		var tr struct {
			Token      string `json:"token"`
			Expiration int64  `json:"expiration"`
		}
		if err := c.do(ctx, http.MethodGet, "/api/v1/token", nil, &tr); err != nil {
			return err
		}
		if err := saveToken(tr.Token, time.Now().Add(time.Duration(tr.Expiration)*time.Second)); err != nil {
			return err
		}
		fmt.Fprintln(out, "ok")
		return nil

	case "confirm":
		if err := need(tok, "-t"); err != nil {
			return err
		}
		if err := c.do(ctx, http.MethodGet, "/auth/confirm/"+*tok, nil, &res); err != nil {
			return err
		}

	case "whoami":
		if err := c.do(ctx, http.MethodGet, "/api/v1/me", nil, &res); err != nil {
			return err
		}

	case "posts":
		path := "/api/v1/posts"
		switch {
		case *user != "" && *timeline:
			path = "/api/v1/users/" + *user + "/timeline"
		case *user != "":
			path = "/api/v1/users/" + *user + "/posts"
		}
		if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s?page=%d", path, *page), nil, &res); err != nil {
			return err
		}

	case "post":
		if err := need(id, "-id"); err != nil {
			return err
		}
		if err := c.do(ctx, http.MethodGet, "/api/v1/posts/"+*id, nil, &res); err != nil {
			return err
		}

	case "new-post":
		in, err := body()
		if err != nil {
			return err
		}
		if err := c.do(ctx, http.MethodPost, "/api/v1/posts", in, &res); err != nil {
			return err
		}

	case "edit-post":
		if err := need(id, "-id"); err != nil {
			return err
		}
		in, err := body()
		if err != nil {
			return err
		}
		if err := c.do(ctx, http.MethodPut, "/api/v1/posts/"+*id, in, &res); err != nil {
			return err
		}

	case "comment":
		if err := need(id, "-id"); err != nil {
			return err
		}
		in, err := body()
		if err != nil {
			return err
		}
		if err := c.do(ctx, http.MethodPost, "/api/v1/posts/"+*id+"/comments", in, &res); err != nil {
			return err
		}

	case "follow", "unfollow":
		if err := need(id, "-id"); err != nil {
			return err
		}
		method := http.MethodPost
		if cmd == "unfollow" {
			method = http.MethodDelete
		}
		if err := c.do(ctx, method, "/api/v1/users/"+*id+"/follow", nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(out, "ok")
		return nil

	default:
		return errUsage
	}
	printJSON(out, res)
	return nil
}

func fail(err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "api error: %s\n", ae)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
