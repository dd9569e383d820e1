// Package rep provides the representation learning application service: it
// assembles the configured components into a training engine and runs the
// epoch loop.
package rep

import (
	"context"
	"fmt"
	"math/rand"

	domain "github.com/poppingtonic/eirli/internal/domain/rep"
	"github.com/poppingtonic/eirli/internal/infrastructure/nn"
	infra "github.com/poppingtonic/eirli/internal/infrastructure/rep"
	"github.com/poppingtonic/eirli/internal/infrastructure/tensor"
)

// LearnerStats summarizes a training run.
type LearnerStats struct {
	Epochs        int     `json:"epochs"`
	Steps         int     `json:"steps"`
	LastEpochLoss float64 `json:"lastEpochLoss"`
	FinalLR       float64 `json:"finalLR"`
}

// RepresentationLearner wires pair constructor, augmenter, encoder, decoder,
// batch extender and loss into one training engine. All configuration errors
// surface at construction; Learn only fails on precondition violations.
//
// The learner is single-threaded: the momentum updates and the negative
// queue assume exactly one training loop driving them.
type RepresentationLearner struct {
	config domain.LearnerConfig
	shape  domain.FrameShape
	rng    *rand.Rand

	pairs    infra.PairConstructor
	augment  infra.Augmenter
	encoder  infra.Encoder
	decoder  infra.Decoder
	extender infra.BatchExtender
	loss     infra.LossCalculator

	optimizer *nn.Adam
	scheduler *nn.LinearWarmupCosine
	ckpt      *infra.Checkpointer
	sink      ScalarSink

	steps int
}

// NewRepresentationLearner builds every component from the config. The seed
// drives parameter init, shuffling, augmentation and stochastic losses.
func NewRepresentationLearner(cfg domain.LearnerConfig, shape domain.FrameShape, seed int64, sink ScalarSink) (*RepresentationLearner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid learner config: %w", err)
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = NopSink{}
	}
	rng := rand.New(rand.NewSource(seed))

	pairs, err := infra.NewPairConstructor(cfg)
	if err != nil {
		return nil, err
	}
	augment, err := infra.NewAugmenter(cfg.Augmenter)
	if err != nil {
		return nil, err
	}
	encoder, err := infra.NewEncoder(cfg, shape, rng)
	if err != nil {
		return nil, err
	}
	decoder, err := infra.NewDecoder(cfg, shape, rng)
	if err != nil {
		return nil, err
	}
	extender, err := infra.NewBatchExtender(cfg)
	if err != nil {
		return nil, err
	}
	loss, err := infra.NewLossCalculator(cfg, rng)
	if err != nil {
		return nil, err
	}

	params := append(encoder.Params(), decoder.Params()...)
	if len(params) == 0 {
		return nil, fmt.Errorf("configuration yields no trainable parameters")
	}
	opt := cfg.Optimizer
	optimizer := nn.NewAdam(params, opt.LearningRate, opt.Beta1, opt.Beta2, opt.Epsilon, opt.WeightDecay)

	var scheduler *nn.LinearWarmupCosine
	if cfg.Scheduler != nil {
		scheduler = nn.NewLinearWarmupCosine(opt.LearningRate, cfg.Scheduler.MinLR,
			cfg.Scheduler.WarmupEpochs, cfg.Scheduler.TotalEpochs)
		optimizer.SetLR(scheduler.LR())
	}

	var ckpt *infra.Checkpointer
	if cfg.CheckpointRoot != "" {
		if ckpt, err = infra.NewCheckpointer(cfg.CheckpointRoot); err != nil {
			return nil, err
		}
	}

	return &RepresentationLearner{
		config:    cfg,
		shape:     shape,
		rng:       rng,
		pairs:     pairs,
		augment:   augment,
		encoder:   encoder,
		decoder:   decoder,
		extender:  extender,
		loss:      loss,
		optimizer: optimizer,
		scheduler: scheduler,
		ckpt:      ckpt,
		sink:      sink,
	}, nil
}

// Encoder exposes the trained encoder for downstream use.
func (l *RepresentationLearner) Encoder() infra.Encoder { return l.encoder }

// Learn runs the training loop for the given number of epochs and returns
// run statistics. The dataset is validated once up front; batches that
// violate call preconditions (unsorted recurrent batches, missing extra
// context) abort the run.
func (l *RepresentationLearner) Learn(ctx context.Context, dataset *domain.TrajectoryDataset, epochs int) (*LearnerStats, error) {
	if epochs <= 0 {
		return nil, fmt.Errorf("epoch count must be positive, got %d", epochs)
	}
	if err := dataset.Validate(); err != nil {
		return nil, err
	}
	if dataset.Shape != l.shape {
		return nil, fmt.Errorf("dataset shape %+v does not match learner shape %+v", dataset.Shape, l.shape)
	}

	pairSet, err := l.pairs.Construct(dataset)
	if err != nil {
		return nil, err
	}

	stats := &LearnerStats{}
	meter := &AverageMeter{}
	for epoch := 1; epoch <= epochs; epoch++ {
		meter.Reset()
		order := make([]int, pairSet.Len())
		for i := range order {
			order[i] = i
		}
		if l.config.Shuffle {
			l.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		for start := 0; start < len(order); start += l.config.BatchSize {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if l.config.MaxTrainSteps > 0 && meter.Count() >= l.config.MaxTrainSteps {
				break
			}
			end := start + l.config.BatchSize
			if end > len(order) {
				end = len(order)
			}
			batch := makeBatch(pairSet, order[start:end])
			lossVal, err := l.trainStep(batch)
			if err != nil {
				return stats, fmt.Errorf("epoch %d step %d: %w", epoch, meter.Count(), err)
			}
			meter.Update(lossVal)
			l.steps++
			l.sink.RecordScalar("loss", l.steps, lossVal)
		}
		l.sink.RecordScalar("epoch_loss", epoch, meter.Average())
		l.sink.RecordScalar("lr", epoch, l.optimizer.LR())

		stats.Epochs = epoch
		stats.Steps = l.steps
		stats.LastEpochLoss = meter.Average()

		if l.scheduler != nil {
			l.scheduler.Step()
			l.optimizer.SetLR(l.scheduler.LR())
		}
		if l.ckpt != nil && epoch%l.config.SaveInterval == 0 {
			if err := l.saveCheckpoint(epoch); err != nil {
				return stats, err
			}
		}
	}
	stats.FinalLR = l.optimizer.LR()
	return stats, nil
}

// saveCheckpoint snapshots encoder and decoder in eval mode.
func (l *RepresentationLearner) saveCheckpoint(epoch int) error {
	l.encoder.SetTraining(false)
	l.decoder.SetTraining(false)
	defer func() {
		l.encoder.SetTraining(true)
		l.decoder.SetTraining(true)
	}()
	if _, err := l.ckpt.Save(infra.CheckpointEncoder, epoch, l.encoder.Params()); err != nil {
		return err
	}
	_, err := l.ckpt.Save(infra.CheckpointDecoder, epoch, l.decoder.Params())
	return err
}

// trainStep runs one forward/backward/update cycle.
func (l *RepresentationLearner) trainStep(batch *domain.Batch) (float64, error) {
	contexts, targets := l.augment.Augment(l.rng, batch.Contexts, batch.Targets, l.shape)

	g := tensor.NewGraph(true)
	info := infra.TrajInfo{TrajIDs: batch.TrajIDs, Timesteps: batch.Timesteps}
	ctxMat := tensor.FromRows(contexts)
	tgtMat := tensor.FromRows(targets)

	encCtx, err := l.encoder.EncodeContext(g, ctxMat, info)
	if err != nil {
		return 0, err
	}
	encTgt, err := l.encoder.EncodeTarget(g, tgtMat, info)
	if err != nil {
		return 0, err
	}

	var extra *tensor.Mat
	if batch.ExtraContexts != nil {
		raw := tensor.FromRows(batch.ExtraContexts)
		if l.config.PreprocessExtraContext {
			if extra, err = l.encoder.EncodeExtraContext(g, raw, info); err != nil {
				return 0, err
			}
		} else {
			extra = raw
		}
	}

	decCtx, err := l.decoder.DecodeContext(g, encCtx, info, extra)
	if err != nil {
		return 0, err
	}
	decTgt, err := l.decoder.DecodeTarget(g, encTgt, info, extra)
	if err != nil {
		return 0, err
	}
	decCtx, decTgt, err = l.extender.Extend(g, decCtx, decTgt)
	if err != nil {
		return 0, err
	}

	l.optimizer.ZeroGrad()
	lossVal, err := l.loss.Compute(g, decCtx, decTgt, encCtx)
	if err != nil {
		return 0, err
	}
	g.Backward()
	l.optimizer.Step()
	return lossVal, nil
}

// makeBatch gathers the selected samples into a training batch. Extra
// contexts are all-or-none per pair constructor; an empty collection is
// normalized to nil.
func makeBatch(ds *domain.PairDataset, picks []int) *domain.Batch {
	b := &domain.Batch{
		Contexts:  make([][]float64, len(picks)),
		Targets:   make([][]float64, len(picks)),
		TrajIDs:   make([]int, len(picks)),
		Timesteps: make([]int, len(picks)),
	}
	withExtra := len(picks) > 0 && ds.Samples[picks[0]].ExtraContext != nil
	if withExtra {
		b.ExtraContexts = make([][]float64, len(picks))
	}
	for i, idx := range picks {
		s := ds.Samples[idx]
		b.Contexts[i] = s.Context
		b.Targets[i] = s.Target
		b.TrajIDs[i] = s.TrajID
		b.Timesteps[i] = s.Timestep
		if withExtra {
			b.ExtraContexts[i] = s.ExtraContext
		}
	}
	return b
}
