package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wisenet/wisenet-backend/internal/graph"
	"github.com/wisenet/wisenet-backend/internal/platform/envutil"
	"github.com/wisenet/wisenet-backend/internal/platform/llm"
	"github.com/wisenet/wisenet-backend/internal/platform/logger"
	"github.com/wisenet/wisenet-backend/internal/types"
)

var errEmptyCompletion = errors.New("empty completion")

// GenerationService grows a subject's knowledge tree by alternating LLM
// completions (INFO nodes) and follow-up prompt batches (PROMPT nodes).
type GenerationService interface {
	Generate(ctx context.Context, in GenerateInput) error
	GenerateAnswer(ctx context.Context, nodeElementID, llmName string) (*graph.Node, error)
	GeneratePrompts(ctx context.Context, nodeElementID, llmName string, count int) ([]graph.Node, error)
	GenerateQuestions(ctx context.Context, nodeElementID, llmName string, count int) ([]graph.Node, error)
	CreateHumanNode(ctx context.Context, libID, subjectID int64, content string, relatedElementIDs []string) (*graph.Node, error)
}

type GenerateInput struct {
	LibID        int64
	SubjectID    int64
	LibName      string
	SubjectTitle string
	LLMName      string
	MaxDepth     int
}

// GenerationConfig bounds a run. MaxFanout caps concurrent sibling
// branches at each level, keeping the LLM call width explicit.
type GenerationConfig struct {
	DeepLimit    int
	LLMTimeout   time.Duration
	PromptsCount int
	MaxFanout    int
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		DeepLimit:    envutil.Int("DEEP_LIMIT", 10),
		LLMTimeout:   time.Duration(envutil.Int("LLM_TIMEOUT_SECONDS", 60)) * time.Second,
		PromptsCount: envutil.Int("GENERATE_PROMPTS_COUNT", 3),
		MaxFanout:    envutil.Int("GENERATION_MAX_FANOUT", 8),
	}
}

type generationService struct {
	nodes     graph.NodeRepo
	rels      graph.RelationshipRepo
	status    StatusOracle
	llm       llm.Client
	templates *llm.Templates
	cfg       GenerationConfig
	log       *logger.Logger
}

func NewGenerationService(nodes graph.NodeRepo, rels graph.RelationshipRepo, status StatusOracle, client llm.Client, templates *llm.Templates, cfg GenerationConfig, baseLog *logger.Logger) GenerationService {
	return &generationService{
		nodes:     nodes,
		rels:      rels,
		status:    status,
		llm:       client,
		templates: templates,
		cfg:       cfg,
		log:       baseLog.With("service", "generation"),
	}
}

func (s *generationService) Generate(ctx context.Context, in GenerateInput) error {
	if strings.TrimSpace(in.SubjectTitle) == "" {
		return graph.Validationf("subject title must not be empty")
	}
	if in.MaxDepth < 2 || in.MaxDepth > s.cfg.DeepLimit {
		return graph.Validationf("max depth %d outside [2, %d]", in.MaxDepth, s.cfg.DeepLimit)
	}
	if in.MaxDepth%2 != 0 {
		return graph.Validationf("max depth %d must be even", in.MaxDepth)
	}
	if in.LibID <= 0 || in.SubjectID <= 0 {
		return graph.Validationf("lib id and subject id are required")
	}

	status, err := s.status.Status(ctx, in.LibID)
	if err != nil {
		return err
	}
	if status == types.LibStatusPublished || status == types.LibStatusAnalyzing {
		return graph.Conflictf("library %d is %s", in.LibID, status)
	}

	log := s.log.With("run_id", uuid.NewString(), "lib_id", in.LibID, "subject_id", in.SubjectID)
	log.Info("generation started", "subject", in.SubjectTitle, "max_depth", in.MaxDepth)

	root, err := s.nodes.EnsureRoot(ctx, in.LibID)
	if err != nil {
		return err
	}

	// Re-generation replaces the previous subtree for this subject.
	if err := s.nodes.DeleteSubjectTree(ctx, in.LibID, in.SubjectID); err != nil {
		return err
	}

	subject, err := s.createLinked(ctx, root, graph.TypeSubject, in.SubjectTitle, in.LibID, in.SubjectID)
	if err != nil {
		return err
	}

	if err := s.expand(ctx, log, subject, in); err != nil {
		return err
	}
	log.Info("generation finished")
	return nil
}

// expand runs one recursion level: complete the current node's content
// into an INFO child, then fan out over follow-up prompts. Branch-local
// LLM failures stop the branch; store failures fail the run.
func (s *generationService) expand(ctx context.Context, log *logger.Logger, current *graph.Node, in GenerateInput) error {
	if s.canceled(ctx, log, in.LibID) {
		return nil
	}
	if current.Depth >= in.MaxDepth {
		return nil
	}

	answer, ok := s.complete(ctx, log, current.Content, in.LLMName)
	if !ok {
		return nil
	}
	info, err := s.createLinked(ctx, current, graph.TypeInfo, answer, in.LibID, in.SubjectID)
	if err != nil {
		return err
	}
	if info.Depth >= in.MaxDepth {
		return nil
	}

	prompts, ok := s.followUpPrompts(ctx, log, info.Content, in.LLMName)
	if !ok || len(prompts) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxFanout)
	for _, prompt := range prompts {
		prompt := prompt
		g.Go(func() error {
			if s.canceled(gctx, log, in.LibID) {
				return nil
			}
			promptNode, err := s.createLinked(gctx, info, graph.TypePrompt, prompt, in.LibID, in.SubjectID)
			if err != nil {
				return err
			}
			return s.expand(gctx, log, promptNode, in)
		})
	}
	return g.Wait()
}

func (s *generationService) createLinked(ctx context.Context, parent *graph.Node, t graph.NodeType, content string, libID, subjectID int64) (*graph.Node, error) {
	child, err := s.nodes.Create(ctx, &graph.Node{
		LibID:     libID,
		SubjectID: subjectID,
		Type:      t,
		Content:   content,
		Depth:     parent.Depth + 1,
	})
	if err != nil {
		return nil, err
	}
	_, err = s.rels.Create(ctx, &graph.Relationship{
		LibID:           libID,
		SubjectID:       subjectID,
		Type:            graph.RelHasChild,
		SourceElementID: parent.ElementID,
		TargetElementID: child.ElementID,
	})
	if err != nil {
		return nil, err
	}
	return child, nil
}

// complete runs one bounded LLM completion. Timeouts and upstream errors
// are logged and reported as a stop, never escalated.
func (s *generationService) complete(ctx context.Context, log *logger.Logger, prompt, llmName string) (string, bool) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()
	text, err := s.llm.Complete(cctx, prompt, llmName)
	if err != nil {
		log.Warn("branch completion failed", "error", err)
		return "", false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		log.Warn("branch completion empty")
		return "", false
	}
	return text, true
}

func (s *generationService) followUpPrompts(ctx context.Context, log *logger.Logger, content, llmName string) ([]string, bool) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()
	rendered := s.templates.Render(llm.TemplateGeneratePrompts, content, s.cfg.PromptsCount)
	raw, err := s.llm.CompleteJSON(cctx, rendered, llmName)
	if err != nil {
		log.Warn("follow-up prompt generation failed", "error", err)
		return nil, false
	}
	prompts, err := llm.ParseStringList(raw)
	if err != nil {
		log.Warn("follow-up prompt parse failed", "error", err)
		return nil, false
	}
	if len(prompts) > s.cfg.PromptsCount {
		prompts = prompts[:s.cfg.PromptsCount]
	}
	return prompts, true
}

// canceled polls the status oracle. A PENDING readback means the caller
// reset the library mid-run; the run stops quietly at the next check.
// An oracle read failure never kills the run.
func (s *generationService) canceled(ctx context.Context, log *logger.Logger, libID int64) bool {
	status, err := s.status.Status(ctx, libID)
	if err != nil {
		log.Warn("status poll failed", "error", err)
		return false
	}
	if status == types.LibStatusPending {
		log.Info("generation canceled")
		return true
	}
	return false
}

// GenerateAnswer completes one node's content into a single INFO child,
// the one-shot version of the recursive expansion step.
func (s *generationService) GenerateAnswer(ctx context.Context, nodeElementID, llmName string) (*graph.Node, error) {
	node, found, err := s.nodes.GetByElementID(ctx, nodeElementID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, graph.NotFoundf("node %s", nodeElementID)
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()
	answer, err := s.llm.Complete(cctx, node.Content, llmName)
	if err != nil {
		return nil, graph.Upstream("generate answer", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, graph.Upstream("generate answer", errEmptyCompletion)
	}
	return s.createLinked(ctx, node, graph.TypeInfo, answer, node.LibID, node.SubjectID)
}

// GeneratePrompts attaches one batch of follow-up PROMPT children to a
// node without recursing further.
func (s *generationService) GeneratePrompts(ctx context.Context, nodeElementID, llmName string, count int) ([]graph.Node, error) {
	if count <= 0 {
		count = s.cfg.PromptsCount
	}
	node, found, err := s.nodes.GetByElementID(ctx, nodeElementID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, graph.NotFoundf("node %s", nodeElementID)
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()
	rendered := s.templates.Render(llm.TemplateGeneratePrompts, node.Content, count)
	raw, err := s.llm.CompleteJSON(cctx, rendered, llmName)
	if err != nil {
		return nil, graph.Upstream("generate prompts", err)
	}
	prompts, err := llm.ParseStringList(raw)
	if err != nil {
		return nil, graph.Upstream("parse prompts", err)
	}
	if len(prompts) > count {
		prompts = prompts[:count]
	}
	out := make([]graph.Node, 0, len(prompts))
	for _, prompt := range prompts {
		created, err := s.createLinked(ctx, node, graph.TypePrompt, prompt, node.LibID, node.SubjectID)
		if err != nil {
			return nil, err
		}
		out = append(out, *created)
	}
	return out, nil
}

// GenerateQuestions asks the LLM for reader questions over a node's
// content and attaches each as a QUESTION node pointing at its answer.
func (s *generationService) GenerateQuestions(ctx context.Context, nodeElementID, llmName string, count int) ([]graph.Node, error) {
	if count <= 0 {
		return nil, graph.Validationf("question count must be positive")
	}
	node, found, err := s.nodes.GetByElementID(ctx, nodeElementID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, graph.NotFoundf("node %s", nodeElementID)
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()
	rendered := s.templates.Render(llm.TemplateGenerateQuestion, node.Content, count)
	raw, err := s.llm.CompleteJSON(cctx, rendered, llmName)
	if err != nil {
		return nil, graph.Upstream("generate questions", err)
	}
	questions, err := llm.ParseStringList(raw)
	if err != nil {
		return nil, graph.Upstream("parse questions", err)
	}

	out := make([]graph.Node, 0, len(questions))
	for _, q := range questions {
		question, err := s.nodes.Create(ctx, &graph.Node{
			LibID:     node.LibID,
			SubjectID: node.SubjectID,
			Type:      graph.TypeQuestion,
			Content:   q,
			Depth:     node.Depth - 1,
		})
		if err != nil {
			return nil, err
		}
		_, err = s.rels.Create(ctx, &graph.Relationship{
			LibID:           node.LibID,
			SubjectID:       node.SubjectID,
			Type:            graph.RelHasChild,
			SourceElementID: question.ElementID,
			TargetElementID: node.ElementID,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, *question)
	}
	return out, nil
}

// CreateHumanNode records a human-authored note and cross-links it to
// existing nodes with RELATED_TO edges.
func (s *generationService) CreateHumanNode(ctx context.Context, libID, subjectID int64, content string, relatedElementIDs []string) (*graph.Node, error) {
	node, err := s.nodes.Create(ctx, &graph.Node{
		LibID:     libID,
		SubjectID: subjectID,
		Type:      graph.TypeHuman,
		Content:   content,
		Depth:     1,
	})
	if err != nil {
		return nil, err
	}
	for _, target := range relatedElementIDs {
		_, err := s.rels.Create(ctx, &graph.Relationship{
			LibID:           libID,
			SubjectID:       subjectID,
			Type:            graph.RelRelatedTo,
			SourceElementID: node.ElementID,
			TargetElementID: target,
		})
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}
