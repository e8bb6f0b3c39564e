package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/drunlade/go-hostarq/arq"
	"github.com/drunlade/go-hostarq/hostmode"
)

var (
	call         = pflag.StringP("call", "c", "", "station call sign")
	grid         = pflag.String("grid", "", "Maidenhead grid square")
	serialDev    = pflag.StringP("serial", "s", "", "serial device of the TNC")
	baud         = pflag.IntP("baud", "b", 115200, "serial baud rate")
	tcpAddr      = pflag.StringP("tcp", "t", "", "host:port of a networked TNC")
	sharedDir    = pflag.StringP("shared", "d", "", "shared files root")
	mailDir      = pflag.StringP("mailbox", "m", "mail", "mailbox directory")
	credFile     = pflag.String("credentials", "", "credential file (default: <shared>/arim-digest)")
	logFile      = pflag.StringP("log", "l", "", "log file (default: stderr)")
	debug        = pflag.BoolP("verbose", "v", false, "log debug detail")
	statusAddr   = pflag.String("status-addr", "", "listen address of the HTTP status endpoint")
	maxFileSize  = pflag.Int64("max-file-size", 0, "largest file accepted or served, in bytes")
	sendRepeats  = pflag.Int("send-repeats", -1, "retransmissions of an unacked message")
	pilotPings   = pflag.Int("pilot-pings", 0, "pings sent ahead of each message")
	protected    = pflag.StringSlice("protected", nil, "shared sub-directories that require authentication")
	autoRegister = pflag.Bool("auto-dirs", false, "expose every sub-directory of the shared root")
	help         = pflag.BoolP("help", "h", false, "show help")
	version      = pflag.Bool("version", false, "show version")
)

const versionString = "arimd version 1.0.0"

func main() {
	pflag.Usage = func() { showUsage(2) }
	pflag.Parse()

	if *help {
		showUsage(0)
	}
	if *version {
		fmt.Println(versionString)
		os.Exit(0)
	}
	if *call == "" {
		fmt.Fprintf(os.Stderr, "%s: --call is required\n", os.Args[0])
		showUsage(1)
	}
	if (*serialDev == "") == (*tcpAddr == "") {
		fmt.Fprintf(os.Stderr, "%s: exactly one of --serial or --tcp is required\n", os.Args[0])
		showUsage(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := signalContext(sigChan)
	defer cancel()

	if err := run(ctx, cancel); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc) error {
	logger, err := openLogger()
	if err != nil {
		return err
	}
	defer logger.Close()

	cfg := arq.DefaultConfig()
	cfg.MyCall = strings.ToUpper(*call)
	cfg.GridSquare = *grid
	cfg.SharedRoot = *sharedDir
	cfg.ProtectedDirs = *protected
	cfg.AutoRegisterDirs = *autoRegister
	cfg.Version = versionString
	if *maxFileSize > 0 {
		cfg.MaxFileSize = *maxFileSize
	}
	if *sendRepeats >= 0 {
		cfg.SendRepeats = *sendRepeats
	}
	cfg.PilotPings = *pilotPings

	credPath := *credFile
	if credPath == "" && cfg.SharedRoot != "" {
		credPath = filepath.Join(cfg.SharedRoot, cfg.CredentialFile)
	}
	if credPath == "" {
		credPath = cfg.CredentialFile
	}
	creds := arq.NewCredentialStore(credPath)

	mailbox, err := arq.NewDirMailbox(*mailDir)
	if err != nil {
		return err
	}

	port, err := openPort()
	if err != nil {
		return err
	}
	defer port.Close()

	con := newConsole()
	defer con.close()

	var sess *arq.Session
	link := hostmode.NewLink(port, func(ev hostmode.Event) { sess.HandleLink(ev) },
		hostmode.WithLinkLogger(logger))

	shares := arq.NewShares(cfg, logger)
	sess = arq.NewSession(link,
		arq.WithConfig(cfg),
		arq.WithLogger(logger),
		arq.WithCallbacks(con.callbacks()),
		arq.WithMailbox(mailbox),
		arq.WithCredentials(creds),
		arq.WithShares(shares),
	)

	var wg sync.WaitGroup
	errc := make(chan error, 4)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				errc <- fmt.Errorf("%s: %w", name, err)
				stop()
			}
		}()
	}
	start("link", link.Run)
	start("session", sess.Run)
	start("shares", shares.Watch)
	if *statusAddr != "" {
		start("status", func(ctx context.Context) error {
			return serveStatus(ctx, *statusAddr, sess, logger)
		})
	}

	con.loop(ctx, sess, creds, cfg.MyCall, stop)
	stop()
	wg.Wait()
	close(errc)
	return <-errc
}

func openLogger() (*arq.FileLogger, error) {
	if *logFile == "" {
		return arq.NewWriterLogger(os.Stderr, *debug), nil
	}
	return arq.NewFileLogger(*logFile, *debug)
}

func openPort() (hostmode.Port, error) {
	if *serialDev != "" {
		return hostmode.OpenSerial(*serialDev, *baud)
	}
	return hostmode.DialTCP(*tcpAddr, 10*time.Second)
}

// statusReport is the body served at /status.
type statusReport struct {
	Call          string          `json:"call"`
	State         string          `json:"state"`
	Remote        string          `json:"remote,omitempty"`
	Authenticated bool            `json:"authenticated"`
	TNC           arq.TNCSnapshot `json:"tnc"`
	Time          time.Time       `json:"time"`
}

func serveStatus(ctx context.Context, addr string, sess *arq.Session, logger *arq.FileLogger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		remote, auth := sess.Connection()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(statusReport{
			Call:          *call,
			State:         sess.State().String(),
			Remote:        remote,
			Authenticated: auth,
			TNC:           sess.Status(),
			Time:          time.Now().UTC(),
		})
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: handlers.CombinedLoggingHandler(logWriter{logger}, mux),
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
	logger.Info("status endpoint on %s", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// logWriter feeds access log lines into the session logger.
type logWriter struct {
	logger arq.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	w.logger.Info("http %s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// console is the operator's terminal. Output from callbacks is written
// through the terminal so the prompt is redrawn.
type console struct {
	out   io.Writer
	term  *term.Terminal
	in    *bufio.Scanner
	fd    int
	state *term.State
}

func newConsole() *console {
	c := &console{out: os.Stdout}
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		if st, err := term.MakeRaw(fd); err == nil {
			c.fd, c.state = fd, st
			c.term = term.NewTerminal(struct {
				io.Reader
				io.Writer
			}{os.Stdin, os.Stdout}, "arim> ")
			c.out = c.term
			return c
		}
	}
	c.in = bufio.NewScanner(os.Stdin)
	return c
}

func (c *console) close() {
	if c.state != nil {
		term.Restore(c.fd, c.state)
	}
}

func (c *console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format+"\r\n", args...)
}

func (c *console) readLine() (string, error) {
	if c.term != nil {
		return c.term.ReadLine()
	}
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return c.in.Text(), nil
}

func (c *console) callbacks() *arq.Callbacks {
	return &arq.Callbacks{
		OnStatus: func(msg string) {
			c.printf("%s", msg)
		},
		OnProgress: func(name string, transferred, total int64, rate float64) {
			percent := float64(0)
			if total > 0 {
				percent = float64(transferred) / float64(total) * 100
			}
			c.printf("%s: %.1f%% (%.0f bytes/s)", name, percent, rate)
		},
		OnTransferStart: func(name string, size int64, inbound bool) {
			dir := "Sending"
			if inbound {
				dir = "Receiving"
			}
			c.printf("%s: %s (%d bytes)", dir, name, size)
		},
		OnTransferComplete: func(name string, size int64, inbound bool, duration time.Duration) {
			c.printf("Completed: %s (%d bytes in %v)", name, size, duration.Round(time.Millisecond))
		},
		OnMessage: func(m arq.MailMessage) {
			c.printf("message %s from %s:\r\n%s", m.ID, m.From, strings.ReplaceAll(m.Body, "\n", "\r\n"))
		},
		OnResponse: func(from, body string) {
			c.printf("%s: %s", from, body)
		},
		OnListing: func(name string, listing []byte) {
			if name == "" {
				name = "/"
			}
			c.printf("listing of %s:\r\n%s", name, strings.ReplaceAll(string(listing), "\n", "\r\n"))
		},
		OnHeard: func(call, info string) {
			c.printf("heard %s", info)
		},
		OnError: func(err error, context string) {
			c.printf("Error in %s: %v", context, err)
		},
	}
}

// loop reads operator commands until quit, EOF or ctx is done.
func (c *console) loop(ctx context.Context, sess *arq.Session, creds *arq.CredentialStore, mycall string, stop context.CancelFunc) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := c.readLine()
			if err != nil {
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			quit, err := c.exec(sess, creds, mycall, line)
			if err != nil {
				c.printf("%v", err)
			}
			if quit {
				stop()
				return
			}
		}
	}
}

// exec runs one console command.
func (c *console) exec(sess *arq.Session, creds *arq.CredentialStore, mycall, line string) (bool, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return false, nil
	}
	compress := false
	args := f[1:]
	if len(args) > 0 && args[0] == "-z" {
		compress, args = true, args[1:]
	}
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}
	rest := func(i int) string {
		if i < len(args) {
			return strings.Join(args[i:], " ")
		}
		return ""
	}

	switch f[0] {
	case "send":
		if len(args) < 2 {
			return false, fmt.Errorf("usage: send CALL text")
		}
		return false, sess.SendMessage(args[0], rest(1))
	case "query":
		if len(args) < 2 {
			return false, fmt.Errorf("usage: query CALL query")
		}
		return false, sess.SendQuery(args[0], rest(1))
	case "unproto":
		if len(args) < 2 {
			return false, fmt.Errorf("usage: unproto CALL|QST text")
		}
		return false, sess.SendUnproto(args[0], rest(1))
	case "beacon":
		return false, sess.SendBeacon()
	case "ping":
		n := 1
		if len(args) < 1 {
			return false, fmt.Errorf("usage: ping CALL [n]")
		}
		if len(args) > 1 {
			v, err := strconv.Atoi(args[1])
			if err != nil || v < 1 {
				return false, fmt.Errorf("bad ping count %q", args[1])
			}
			n = v
		}
		return false, sess.Ping(args[0], n)
	case "connect":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: connect CALL")
		}
		return false, sess.Connect(args[0])
	case "disconnect":
		return false, sess.Disconnect()
	case "fput":
		if len(args) < 1 {
			return false, fmt.Errorf("usage: fput [-z] name [dir]")
		}
		return false, sess.SendFile(args[0], arg(1), compress)
	case "fget":
		if len(args) < 1 {
			return false, fmt.Errorf("usage: fget [-z] name [dir]")
		}
		return false, sess.GetFile(args[0], arg(1), compress)
	case "flist":
		return false, sess.GetListing(arg(0), compress)
	case "mput":
		if len(args) < 1 {
			return false, fmt.Errorf("usage: mput [-z] [CALL:] text")
		}
		to, text := "", rest(0)
		if strings.HasSuffix(args[0], ":") {
			to, text = strings.TrimSuffix(args[0], ":"), rest(1)
		}
		return false, sess.PutMessage(to, text, compress)
	case "mget":
		n := 0
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 1 {
				return false, fmt.Errorf("bad message count %q", args[0])
			}
			n = v
		}
		return false, sess.GetMessages(n, compress)
	case "mlist":
		return false, sess.ListMessages()
	case "auth":
		return false, sess.Authenticate(arg(0))
	case "passwd":
		server := false
		if len(args) > 0 && args[0] == "-s" {
			server, args = true, args[1:]
		}
		if len(args) != 2 {
			return false, fmt.Errorf("usage: passwd [-s] CALL password")
		}
		remote := strings.ToUpper(args[0])
		ha1 := arq.HA1(remote, mycall, args[1])
		if server {
			ha1 = arq.HA1(mycall, remote, args[1])
		}
		if err := creds.Set(remote, mycall, ha1); err != nil {
			return false, err
		}
		c.printf("stored credentials for %s in %s", remote, creds.Path())
		return false, nil
	case "cancel":
		return false, sess.Cancel()
	case "state":
		st := sess.Status()
		remote, auth := sess.Connection()
		c.printf("state %s, TNC %s attached=%v busy=%v buffer=%d", sess.State(), st.State, st.Attached, st.Busy, st.Buffer)
		if remote != "" {
			c.printf("connected to %s authenticated=%v", remote, auth)
		}
		return false, nil
	case "help", "?":
		c.printf("%s", consoleHelp)
		return false, nil
	case "quit", "exit":
		return true, nil
	}
	return false, fmt.Errorf("unknown command %q, try help", f[0])
}

const consoleHelp = "send CALL text | query CALL q | unproto CALL|QST text | beacon | ping CALL [n]\r\n" +
	"connect CALL | disconnect | cancel | state | quit\r\n" +
	"fput [-z] name [dir] | fget [-z] name [dir] | flist [-z] [dir]\r\n" +
	"mput [-z] [CALL:] text | mget [-z] [n] | mlist | auth [path] | passwd [-s] CALL password"

func signalContext(sigChan chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}

func showUsage(exitcode int) {
	fmt.Fprintf(os.Stderr, `%s - radio messaging station on a host-mode TNC

Usage: %s --call CALL (--serial DEV | --tcp HOST:PORT) [options]

Options:
%s
Examples:
  %s -c K1ABC -s /dev/ttyUSB0 -d ~/shared
  %s -c K1ABC -t 127.0.0.1:8515 --status-addr :8080 --protected private

`, versionString, os.Args[0], pflag.CommandLine.FlagUsages(), os.Args[0], os.Args[0])
	os.Exit(exitcode)
}
