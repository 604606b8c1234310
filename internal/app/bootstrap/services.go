package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/salonchat/supportdesk/internal/archive"
	"github.com/salonchat/supportdesk/internal/assistant"
	appconfig "github.com/salonchat/supportdesk/internal/config"
	"github.com/salonchat/supportdesk/internal/notify"
	"github.com/salonchat/supportdesk/pkg/logging"
)

// BuildEmailSender picks SendGrid, then SES, then a sender that only logs.
// awsCfg may be nil when AWS is not configured.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		return sg, "sendgrid"
	}
	if awsCfg != nil {
		if ses := notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); ses != nil {
			return ses, "ses"
		}
	}
	return notify.NewLogEmailSender(logger), "log"
}

// BuildLLMClient wires Gemini as the primary model and Bedrock as its
// fallback; either may be absent. The returned client is nil when neither is
// configured. close releases provider resources and is never nil.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (assistant.LLMClient, func(), error) {
	if logger == nil {
		logger = logging.Default()
	}
	closeFn := func() {}

	var primary, fallback assistant.LLMClient
	if cfg.GeminiAPIKey != "" {
		gemini, err := assistant.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, closeFn, fmt.Errorf("bootstrap: gemini: %w", err)
		}
		closeFn = func() { _ = gemini.Close() }
		primary = gemini
	}
	if cfg.BedrockModelID != "" && awsCfg != nil {
		fallback = assistant.NewBedrockClient(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID)
	}

	client := assistant.NewFallbackClient(primary, fallback, logger)
	if client == nil {
		logger.Warn("no language model configured; assistant disabled")
		return nil, closeFn, nil
	}
	logger.Info("assistant model configured", "gemini", primary != nil, "bedrock", fallback != nil)
	return client, closeFn, nil
}

// BuildArchiveStore returns the S3 transcript archive, or nil when no bucket
// is configured. Path-style addressing is used with an endpoint override so
// LocalStack and MinIO work.
func BuildArchiveStore(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) *archive.Store {
	if cfg.TranscriptArchiveBucket == "" || awsCfg == nil {
		return nil
	}
	client := s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
		if cfg.AWSEndpointOverride != "" {
			o.UsePathStyle = true
		}
	})
	return archive.NewStore(client, cfg.TranscriptArchiveBucket, logger)
}
