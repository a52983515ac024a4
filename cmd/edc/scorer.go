package main

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	counterfactual "github.com/FrenchMajesty/evidence-counterfactual"
	"github.com/FrenchMajesty/evidence-counterfactual/adapters"
	"github.com/FrenchMajesty/evidence-counterfactual/adapters/pinecone"
	"github.com/FrenchMajesty/evidence-counterfactual/internal/cache"
	"github.com/FrenchMajesty/evidence-counterfactual/pkg/linear"
)

const (
	scorerLinear   = "linear"
	scorerRemote   = "remote"
	scorerPinecone = "pinecone"
)

// scorerOptions are the flags shared by every command that needs a scorer
type scorerOptions struct {
	modelPath string
	kind      string

	remoteURL string
	rps       float64

	pineconeClass     string
	pineconeNamespace string
	pineconeTopK      int
	pineconeHybrid    bool

	cacheDir       string
	cacheNamespace string
}

func (o *scorerOptions) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&o.modelPath, "model", "m", "", "Linear model file (YAML or JSON); also supplies feature names")
	flags.StringVar(&o.kind, "scorer", scorerLinear, "Scorer to explain: linear, remote or pinecone")
	flags.StringVar(&o.remoteURL, "scorer-url", "", "Remote scoring endpoint (or set EDC_SCORER_URL env)")
	flags.Float64Var(&o.rps, "rps", 0, "Remote scorer request rate limit, 0 uses the adapter default")
	flags.StringVar(&o.pineconeClass, "pinecone-class", "", "Class label of interest for the pinecone scorer")
	flags.StringVar(&o.pineconeNamespace, "pinecone-namespace", "", "Pinecone namespace")
	flags.IntVar(&o.pineconeTopK, "pinecone-top-k", pinecone.DefaultTopK, "Neighbours averaged by the pinecone scorer")
	flags.BoolVar(&o.pineconeHybrid, "pinecone-hybrid", false, "Also query with sparse values")
	flags.StringVar(&o.cacheDir, "cache-dir", "", "Directory of a persistent score cache, empty to disable")
	flags.StringVar(&o.cacheNamespace, "cache-namespace", "", "Cache namespace, defaults to the scorer kind and model path")
}

// scorerSetup is a ready scorer with the resources it holds
type scorerSetup struct {
	scorer       counterfactual.Scorer
	featureNames []string
	dim          int
	cache        *cache.Scorer
	db           *badger.DB
}

// Close releases the cache database, if any
func (s *scorerSetup) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (o *scorerOptions) build(log *zap.Logger) (*scorerSetup, error) {
	setup := &scorerSetup{}

	var model *linear.Model
	if o.modelPath != "" {
		m, err := linear.Load(o.modelPath)
		if err != nil {
			return nil, err
		}
		model = m
		setup.featureNames = m.Features
		setup.dim = m.Dim()
	}

	switch o.kind {
	case scorerLinear:
		if model == nil {
			return nil, fmt.Errorf("--model is required for the %s scorer", scorerLinear)
		}
		setup.scorer = model
	case scorerRemote:
		var endpoint *string
		if o.remoteURL != "" {
			endpoint = &o.remoteURL
		}
		remote, err := adapters.NewRemoteScorer(endpoint, nil, o.rps, log)
		if err != nil {
			return nil, err
		}
		setup.scorer = remote
	case scorerPinecone:
		index, err := adapters.NewPineconeScorer(nil, nil, o.pineconeNamespace, pinecone.Config{
			Class:  o.pineconeClass,
			TopK:   o.pineconeTopK,
			Hybrid: o.pineconeHybrid,
		})
		if err != nil {
			return nil, err
		}
		setup.scorer = index
	default:
		return nil, fmt.Errorf("unknown scorer %q", o.kind)
	}

	if o.cacheDir == "" {
		return setup, nil
	}

	cfg := cache.Config{
		Path:      o.cacheDir,
		Namespace: o.cacheNamespace,
		Logger:    log,
	}
	if cfg.Namespace == "" {
		cfg.Namespace = o.kind + ":" + o.modelPath
	}

	db, err := cache.Open(cfg)
	if err != nil {
		return nil, err
	}
	setup.db = db
	setup.cache = cache.NewScorer(setup.scorer, db, cfg)
	setup.scorer = setup.cache
	return setup, nil
}
