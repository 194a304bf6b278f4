// email-replay re-enqueues stored raw emails onto the notify queue so they
// are summarized and delivered again.
//
// Keys given as arguments are replayed as-is; with no arguments every .eml
// object under --prefix is replayed. Settings may come from a local .env file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jarrod-lowe/burner-notify/internal/config"
	"github.com/jarrod-lowe/burner-notify/internal/rawstore"
	"github.com/jarrod-lowe/burner-notify/internal/replay"
	"github.com/jarrod-lowe/jmap-service-libs/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

var logger = logging.New()

var errNoBucket = errors.New("--bucket is required")

// options holds the parsed command line.
type options struct {
	bucket   string
	prefix   string
	queueURL string
	dryRun   bool
	keys     []string
}

// Publisher sends replay notifications.
type Publisher interface {
	Publish(ctx context.Context, refs []rawstore.ObjectRef) (int, error)
}

func parseFlags(args []string, cfg config.Config) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("email-replay", pflag.ContinueOnError)
	flagSet.StringVar(&opts.bucket, "bucket", cfg.RawEmailBucket, "bucket holding raw emails (default $RAW_EMAIL_BUCKET)")
	flagSet.StringVar(&opts.prefix, "prefix", rawstore.KeyPrefix, "key prefix to replay when no keys are given")
	flagSet.StringVar(&opts.queueURL, "queue-url", cfg.NotifyQueueURL, "notify queue URL (default $NOTIFY_QUEUE_URL)")
	flagSet.BoolVarP(&opts.dryRun, "dry-run", "n", false, "list the objects without sending anything")

	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if opts.bucket == "" {
		return options{}, errNoBucket
	}
	opts.keys = flagSet.Args()
	return opts, nil
}

// selectRefs returns the objects named on the command line, or every
// object under the prefix when none are named.
func selectRefs(ctx context.Context, lister s3.ListObjectsV2APIClient, opts options) ([]rawstore.ObjectRef, error) {
	if len(opts.keys) == 0 {
		return replay.ListRefs(ctx, lister, opts.bucket, opts.prefix)
	}
	refs := make([]rawstore.ObjectRef, 0, len(opts.keys))
	for _, key := range opts.keys {
		key = strings.TrimPrefix(key, "s3://"+opts.bucket+"/")
		refs = append(refs, rawstore.ObjectRef{Bucket: opts.bucket, Key: key})
	}
	return refs, nil
}

func replayEmails(ctx context.Context, lister s3.ListObjectsV2APIClient, publisher Publisher, opts options) error {
	refs, err := selectRefs(ctx, lister, opts)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		logger.InfoContext(ctx, "Nothing to replay",
			slog.String("bucket", opts.bucket),
			slog.String("prefix", opts.prefix),
		)
		return nil
	}

	if opts.dryRun {
		for _, ref := range refs {
			fmt.Println(ref)
		}
		return nil
	}

	sent, err := publisher.Publish(ctx, refs)
	logger.InfoContext(ctx, "Replay finished",
		slog.Int("selected", len(refs)),
		slog.Int("sent", sent),
	)
	return err
}

func run(ctx context.Context) error {
	_ = godotenv.Load()
	cfg := config.Load()

	opts, err := parseFlags(os.Args[1:], cfg)
	if err != nil {
		return err
	}
	cfg.NotifyQueueURL = opts.queueURL
	if !opts.dryRun {
		if err := cfg.ValidateReplay(); err != nil {
			return err
		}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	publisher := replay.NewSQSPublisher(sqs.NewFromConfig(awsCfg), opts.queueURL)
	return replayEmails(ctx, s3.NewFromConfig(awsCfg), publisher, opts)
}

func main() {
	if err := run(context.Background()); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		logger.Error("Replay failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
