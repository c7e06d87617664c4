package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"votingcore/pkg/log"
)

// OutputMode selects how a custodian share is delivered during a ceremony.
type OutputMode string

const (
	OutputTerminal OutputMode = "terminal" // full-screen termbox paint
	OutputPDF      OutputMode = "pdf"      // gofpdf single-page document
	OutputQR       OutputMode = "qr"       // gozxing-encoded QR image alongside the PDF
)

// Config holds all parameters for a core instance: election and crypto
// parameters, plus the ambient knobs (cores, log level, output paths) that
// every entry point needs. It never loads from a config *file* or an
// environment - that concern, like the HTTP surface, belongs to the caller.
type Config struct {
	LogLevel log.LogLevel // trace, debug, info, error
	Cores    int          // worker-pool width for pkg/concurrency and pkg/tally
	DataPath string       // root directory for ceremony output (shares)

	// Crypto parameters
	Threshold   int    // t: minimum shares required to reconstruct a key bundle
	Shares      int    // n: total shares issued per key bundle
	RSABits     int    // RSA-OAEP modulus size, 2048 per spec
	CheckpointN int    // audit entries per Merkle checkpoint
	Seed        string // optional seed label; parsed but not recorded by any command, never used as entropy

	// Ceremony output
	Output  OutputMode
	Printer string // CUPS printer name, used only when Output selects physical printing

	Operator string // administrator/custodian ID recorded against admin-initiated audit entries
}

// NewConfig creates a new Config by parsing command-line flags.
func NewConfig() *Config {
	log.Debug("Parsing command-line flags...")
	cores := flag.Int("cores", 1, "Number of CPU cores (0 for all, 1 for sequential).")
	dataPath := flag.String("data", "output/", "Path for storing ceremony output (shares).")
	threshold := flag.Int("threshold", 3, "Minimum number of shares required to reconstruct a key bundle.")
	shares := flag.Int("shares", 5, "Total number of shares to issue per key bundle.")
	rsaBits := flag.Int("rsa-bits", 2048, "RSA modulus size in bits for the OAEP half of the hybrid cipher.")
	checkpointN := flag.Int("checkpoint-interval", 100, "Number of audit entries per Merkle checkpoint.")
	seed := flag.String("seed", "", "Optional label; accepted but not recorded anywhere (not used as entropy).")
	output := flag.String("output", "terminal", "Share ceremony output mode (terminal, pdf, qr).")
	printer := flag.String("printer", "", "Name of the CUPS printer, if physical printing is desired.")
	logLevel := flag.String("log-level", "info", "Set log level (trace, debug, info, error).")
	operator := flag.String("operator", "cli-operator", "Administrator or custodian ID recorded against audit entries this run produces.")
	flag.Parse()

	setLogLevel(*logLevel)

	config := &Config{
		Cores:       getCores(*cores),
		DataPath:    cleanAndCreateDirectory(*dataPath),
		Threshold:   *threshold,
		Shares:      *shares,
		RSABits:     *rsaBits,
		CheckpointN: *checkpointN,
		Seed:        *seed,
		Output:      OutputMode(*output),
		Printer:     *printer,
		Operator:    *operator,
	}
	log.Debug("Config: %s", config)
	return config
}

// GetPrintCommand returns the command used to send a ceremony PDF to the
// configured CUPS printer.
func (c *Config) GetPrintCommand(filePath string, cut bool) (string, []string) {
	args := []string{"-d", c.Printer, "-o", "fit-to-page", filePath}
	if cut {
		args = append(args, "-o", "TmxPaperCut=CutPerPage")
	}
	return "lp", args
}

// String returns a string representation of the Config instance.
func (c *Config) String() string {
	return fmt.Sprintf("Config%+v", *c)
}

// --- Config Helpers ---

func getCores(cores int) int {
	if cores <= 0 {
		return runtime.NumCPU()
	}
	return cores
}

// cleanAndCreateDirectory ensures the specified directory exists, creating it if necessary.
func cleanAndCreateDirectory(path string) string {
	path = filepath.Clean(path)
	if err := os.MkdirAll(path, 0755); err != nil {
		log.Fatalf("Failed to create directory %s: %v", path, err)
	}
	return path
}

// setLogLevel sets the global log level to one of "trace", "debug", "info", or "error".
// Defaults to "info" on invalid input.
func setLogLevel(logLevel string) {
	switch logLevel {
	case "trace":
		log.SetLevel(log.LevelTrace)
	case "debug":
		log.SetLevel(log.LevelDebug)
	case "info":
		log.SetLevel(log.LevelInfo)
	case "error":
		log.SetLevel(log.LevelError)
	default:
		log.Info("Unknown log level '%s', defaulting to 'info'", logLevel)
		log.SetLevel(log.LevelInfo)
	}
}
