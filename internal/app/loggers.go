package app

import (
	"github-insight/internal/common/logger"
	aq "github-insight/internal/workers/ai-conversation/answer-question"
	di "github-insight/internal/workers/ai-conversation/detect-intents"
	fgd "github-insight/internal/workers/ai-conversation/fetch-github-data"
	gr "github-insight/internal/workers/ai-conversation/generate-response"
)

// Logger adapters for workers that declare their own Logger interfaces.

type detectIntentsLoggerAdapter struct {
	logger.Logger
}

func (a *detectIntentsLoggerAdapter) With(fields map[string]interface{}) di.Logger {
	return &detectIntentsLoggerAdapter{a.Logger.With(fields)}
}

type fetchGitHubDataLoggerAdapter struct {
	logger.Logger
}

func (a *fetchGitHubDataLoggerAdapter) With(fields map[string]interface{}) fgd.Logger {
	return &fetchGitHubDataLoggerAdapter{a.Logger.With(fields)}
}

type generateResponseLoggerAdapter struct {
	logger.Logger
}

func (a *generateResponseLoggerAdapter) With(fields map[string]interface{}) gr.Logger {
	return &generateResponseLoggerAdapter{a.Logger.With(fields)}
}

type answerQuestionLoggerAdapter struct {
	logger.Logger
}

func (a *answerQuestionLoggerAdapter) With(fields map[string]interface{}) aq.Logger {
	return &answerQuestionLoggerAdapter{a.Logger.With(fields)}
}
