package services

import (
	"context"
	"strings"
	"time"

	"github.com/wisenet/wisenet-backend/internal/graph"
	"github.com/wisenet/wisenet-backend/internal/platform/embedding"
	"github.com/wisenet/wisenet-backend/internal/platform/envutil"
	"github.com/wisenet/wisenet-backend/internal/platform/llm"
	"github.com/wisenet/wisenet-backend/internal/platform/logger"
	"github.com/wisenet/wisenet-backend/internal/platform/nlp"
	"github.com/wisenet/wisenet-backend/internal/types"
)

// AnalysisService enriches nodes in place: entities, keywords, tags,
// titles and vectors, plus attached documents and webpages. Enrichment
// steps are best-effort; store writes are not.
type AnalysisService interface {
	Analyze(ctx context.Context, in AnalyzeInput) (*graph.Node, error)
	AnalyzeDocument(ctx context.Context, docElementID string, in AnalyzeInput) (*graph.Document, error)
	AnalyzeWebPage(ctx context.Context, webPageElementID string, in AnalyzeInput) (*graph.WebPage, error)
	AnalyzeLibrary(ctx context.Context, libID int64, in AnalyzeInput) error
}

type AnalyzeInput struct {
	NodeElementID     string
	LLMName           string
	EmbeddingModel    string
	MaxTokensPerChunk int
}

type AnalysisConfig struct {
	LLMTimeout time.Duration
	PageChars  int
}

func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		LLMTimeout: time.Duration(envutil.Int("LLM_TIMEOUT_SECONDS", 60)) * time.Second,
		PageChars:  envutil.Int("DOCUMENT_PAGE_CHARS", 2000),
	}
}

type analysisService struct {
	nodes     graph.NodeRepo
	entities  graph.SatelliteRepo
	keywords  graph.SatelliteRepo
	tags      graph.SatelliteRepo
	docs      graph.DocumentRepo
	webpages  graph.WebPageRepo
	status    StatusOracle
	llm       llm.Client
	templates *llm.Templates
	embedder  embedding.Embedder
	extractor ContentExtractor
	nlp       nlp.Extractor
	cfg       AnalysisConfig
	log       *logger.Logger
}

func NewAnalysisService(
	nodes graph.NodeRepo,
	entities, keywords, tags graph.SatelliteRepo,
	docs graph.DocumentRepo,
	webpages graph.WebPageRepo,
	status StatusOracle,
	client llm.Client,
	templates *llm.Templates,
	embedder embedding.Embedder,
	extractor ContentExtractor,
	entityExtractor nlp.Extractor,
	cfg AnalysisConfig,
	baseLog *logger.Logger,
) AnalysisService {
	return &analysisService{
		nodes:     nodes,
		entities:  entities,
		keywords:  keywords,
		tags:      tags,
		docs:      docs,
		webpages:  webpages,
		status:    status,
		llm:       client,
		templates: templates,
		embedder:  embedder,
		extractor: extractor,
		nlp:       entityExtractor,
		cfg:       cfg,
		log:       baseLog.With("service", "analysis"),
	}
}

func (s *analysisService) Analyze(ctx context.Context, in AnalyzeInput) (*graph.Node, error) {
	node, found, err := s.nodes.GetDetail(ctx, in.NodeElementID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, graph.NotFoundf("node %s", in.NodeElementID)
	}

	status, err := s.status.Status(ctx, node.LibID)
	if err != nil {
		return nil, err
	}
	if status == types.LibStatusGenerating || status == types.LibStatusPublished {
		return nil, graph.Conflictf("library %d is %s", node.LibID, status)
	}

	log := s.log.With("node", node.ElementID, "lib_id", node.LibID)

	// 1. Entities: replace the node's set with a fresh extraction.
	if entities, err := s.extractEntities(ctx, node.Content, in.LLMName); err != nil {
		log.Warn("entity extraction failed", "error", err)
	} else if err := s.replaceSatellites(ctx, s.entities, node, entities); err != nil {
		return nil, err
	}

	var titleVector []float32

	// 2. Title, for node types whose content is free prose.
	if node.Type == graph.TypeHuman || node.Type == graph.TypeInfo {
		if title, err := s.completeTemplate(ctx, llm.TemplateAnalysisTitle, node.Content, in.LLMName); err != nil {
			log.Warn("title generation failed", "error", err)
		} else if title != "" {
			node.Title = title
			if vec, err := s.embedder.Embed(ctx, title, in.EmbeddingModel, in.MaxTokensPerChunk); err != nil {
				log.Warn("title embedding failed", "error", err)
			} else {
				titleVector = vec
			}
		}
	}

	// 3. Keywords.
	if keywords, err := s.completeList(ctx, llm.TemplateAnalysisKeywords, node.Content, in.LLMName); err != nil {
		log.Warn("keyword generation failed", "error", err)
	} else if err := s.replaceSatellites(ctx, s.keywords, node, keywords); err != nil {
		return nil, err
	}

	// 4. Tags.
	if tags, err := s.completeList(ctx, llm.TemplateAnalysisTags, node.Content, in.LLMName); err != nil {
		log.Warn("tag generation failed", "error", err)
	} else if err := s.replaceSatellites(ctx, s.tags, node, tags); err != nil {
		return nil, err
	}

	// 5. Content vector.
	var contentVector []float32
	if vec, err := s.embedder.Embed(ctx, node.Content, in.EmbeddingModel, in.MaxTokensPerChunk); err != nil {
		log.Warn("content embedding failed", "error", err)
	} else {
		contentVector = vec
	}

	// 6. Attached documents.
	for _, doc := range node.Docs {
		if _, err := s.AnalyzeDocument(ctx, doc.ElementID, in); err != nil {
			if graph.IsStore(err) {
				return nil, err
			}
			log.Warn("document analysis failed", "document", doc.ElementID, "error", err)
		}
	}

	// 7. Attached webpages.
	for _, page := range node.WebPages {
		if _, err := s.AnalyzeWebPage(ctx, page.ElementID, in); err != nil {
			if graph.IsStore(err) {
				return nil, err
			}
			log.Warn("webpage analysis failed", "webpage", page.ElementID, "error", err)
		}
	}

	// 8. Persist the node with its new vectors and model tag.
	node.EmbeddingModel = in.EmbeddingModel
	updated, err := s.nodes.Update(ctx, node)
	if err != nil {
		return nil, err
	}
	if err := s.nodes.SetVectors(ctx, node.ElementID, titleVector, contentVector, in.EmbeddingModel); err != nil {
		return nil, err
	}
	updated.TitleVector = titleVector
	updated.ContentVector = contentVector
	log.Info("node analyzed")
	return updated, nil
}

// AnalyzeDocument reads the stored file, summarizes it, embeds title and
// summary, and replaces the document's page slices.
func (s *analysisService) AnalyzeDocument(ctx context.Context, docElementID string, in AnalyzeInput) (*graph.Document, error) {
	doc, found, err := s.docs.GetByElementID(ctx, docElementID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, graph.NotFoundf("document %s", docElementID)
	}
	text, err := s.extractor.ExtractFile(ctx, doc.SavedPath)
	if err != nil {
		return nil, graph.Upstream("extract document text", err)
	}
	summary, err := s.summarize(ctx, text, in.LLMName)
	if err != nil {
		return nil, err
	}
	doc.Title = summary.Title
	doc.Content = summary.Summary
	doc.EmbeddingModel = in.EmbeddingModel
	updated, err := s.docs.Update(ctx, doc)
	if err != nil {
		return nil, err
	}
	titleVec, contentVec := s.embedPair(ctx, doc.Title, doc.Content, in)
	if err := s.docs.SetVectors(ctx, doc.ElementID, titleVec, contentVec, in.EmbeddingModel); err != nil {
		return nil, err
	}

	pages := SplitPages(text, s.cfg.PageChars)
	slices := make([]graph.DocumentPage, 0, len(pages))
	for i, content := range pages {
		page := graph.DocumentPage{
			LibID:          doc.LibID,
			PageNo:         i + 1,
			Content:        content,
			EmbeddingModel: in.EmbeddingModel,
		}
		if vec, err := s.embedder.Embed(ctx, content, in.EmbeddingModel, in.MaxTokensPerChunk); err != nil {
			s.log.Warn("page embedding failed", "document", doc.ElementID, "page", i+1, "error", err)
		} else {
			page.ContentVector = vec
		}
		slices = append(slices, page)
	}
	if err := s.docs.ReplacePages(ctx, doc.ElementID, doc.LibID, slices); err != nil {
		return nil, err
	}
	return updated, nil
}

// AnalyzeWebPage fetches the URL, summarizes it and embeds the result.
func (s *analysisService) AnalyzeWebPage(ctx context.Context, webPageElementID string, in AnalyzeInput) (*graph.WebPage, error) {
	page, found, err := s.webpages.GetByElementID(ctx, webPageElementID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, graph.NotFoundf("webpage %s", webPageElementID)
	}
	text, err := s.extractor.ExtractURL(ctx, page.URL)
	if err != nil {
		return nil, graph.Upstream("fetch webpage", err)
	}
	summary, err := s.summarize(ctx, text, in.LLMName)
	if err != nil {
		return nil, err
	}
	page.Title = summary.Title
	page.Content = summary.Summary
	page.EmbeddingModel = in.EmbeddingModel
	updated, err := s.webpages.Update(ctx, page)
	if err != nil {
		return nil, err
	}
	titleVec, contentVec := s.embedPair(ctx, page.Title, page.Content, in)
	if err := s.webpages.SetVectors(ctx, page.ElementID, titleVec, contentVec, in.EmbeddingModel); err != nil {
		return nil, err
	}
	return updated, nil
}

// AnalyzeLibrary re-runs node analysis over every INFO and HUMAN node in
// the library. A single node's failure is logged and skipped unless it
// is a store failure.
func (s *analysisService) AnalyzeLibrary(ctx context.Context, libID int64, in AnalyzeInput) error {
	for _, t := range []graph.NodeType{graph.TypeInfo, graph.TypeHuman} {
		nodes, err := s.nodes.ListByType(ctx, libID, 0, t)
		if err != nil {
			return err
		}
		for _, node := range nodes {
			nodeIn := in
			nodeIn.NodeElementID = node.ElementID
			if _, err := s.Analyze(ctx, nodeIn); err != nil {
				if graph.IsStore(err) || graph.IsConflict(err) {
					return err
				}
				s.log.Warn("library node analysis failed", "node", node.ElementID, "error", err)
			}
		}
	}
	return nil
}

// ---- helpers ----

func (s *analysisService) extractEntities(ctx context.Context, content, llmName string) ([]string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()
	return s.nlp.ExtractEntities(cctx, content, llmName)
}

func (s *analysisService) completeTemplate(ctx context.Context, template, input, llmName string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()
	raw, err := s.llm.CompleteJSON(cctx, s.templates.Render(template, input, 0), llmName)
	if err != nil {
		return "", graph.Upstream(template, err)
	}
	return llm.ParseString(raw)
}

func (s *analysisService) completeList(ctx context.Context, template, input, llmName string) ([]string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()
	raw, err := s.llm.CompleteJSON(cctx, s.templates.Render(template, input, 0), llmName)
	if err != nil {
		return nil, graph.Upstream(template, err)
	}
	return llm.ParseStringList(raw)
}

func (s *analysisService) summarize(ctx context.Context, text, llmName string) (llm.Summary, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()
	raw, err := s.llm.CompleteJSON(cctx, s.templates.Render(llm.TemplateSummarize, text, 0), llmName)
	if err != nil {
		return llm.Summary{}, graph.Upstream("summarize", err)
	}
	summary, err := llm.ParseSummary(raw)
	if err != nil {
		return llm.Summary{}, graph.Upstream("parse summary", err)
	}
	return summary, nil
}

func (s *analysisService) embedPair(ctx context.Context, title, content string, in AnalyzeInput) ([]float32, []float32) {
	var titleVec, contentVec []float32
	if strings.TrimSpace(title) != "" {
		if vec, err := s.embedder.Embed(ctx, title, in.EmbeddingModel, in.MaxTokensPerChunk); err != nil {
			s.log.Warn("title embedding failed", "error", err)
		} else {
			titleVec = vec
		}
	}
	if strings.TrimSpace(content) != "" {
		if vec, err := s.embedder.Embed(ctx, content, in.EmbeddingModel, in.MaxTokensPerChunk); err != nil {
			s.log.Warn("content embedding failed", "error", err)
		} else {
			contentVec = vec
		}
	}
	return titleVec, contentVec
}

// replaceSatellites rebuilds one satellite set with delete-then-attach,
// deduplicating by content first.
func (s *analysisService) replaceSatellites(ctx context.Context, repo graph.SatelliteRepo, node *graph.Node, contents []string) error {
	if err := repo.DetachAll(ctx, node.ElementID); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(contents))
	for _, content := range contents {
		key := strings.ToLower(strings.TrimSpace(content))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if _, err := repo.Attach(ctx, node.LibID, node.ElementID, content); err != nil {
			return err
		}
	}
	return nil
}
