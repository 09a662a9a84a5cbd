// Package log defines standard attribute keys for LCE operations.
//
// The keys follow a hierarchical naming convention ("model.name",
// "data.samples", "lce.node.depth") so that fit traces of deep trees can be
// filtered per node and per search trial.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the estimator type.
	// Examples: "TreeClassifier", "Classifier", "boosting.Regressor"
	ModelNameKey = "model.name"

	// EstimatorIDKey identifies one estimator inside an ensemble (tree index).
	EstimatorIDKey = "estimator.id"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "score", "search"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is logging.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"
)

// Data Shape
const (
	// SamplesKey indicates the number of rows being processed.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of columns being processed.
	// Grows with depth in an LCE tree because of the augmented features.
	FeaturesKey = "data.features"

	// ClassesKey indicates the number of distinct classes at a node.
	ClassesKey = "data.classes"

	// MissingKey indicates the number of rows with at least one missing value.
	MissingKey = "data.missing_rows"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// ScoreKey records a validation score (search trials, Score()).
	ScoreKey = "metrics.score"

	// LossKey records the training loss of a booster.
	LossKey = "metrics.loss"

	// IterationKey records the boosting round or the search trial.
	IterationKey = "training.iteration"
)

// LCE tree growth
const (
	// NodeDepthKey records the depth of the node being fitted.
	NodeDepthKey = "lce.node.depth"

	// BaseLearnerKey records the boosting backend used at a node.
	BaseLearnerKey = "lce.base_learner"

	// MissingSideKey records the child that absorbs rows with missing values.
	MissingSideKey = "lce.missing_side"

	// SplitFeatureKey records the feature index chosen by the node router.
	SplitFeatureKey = "lce.split.feature"

	// LeftSamplesKey and RightSamplesKey record the child partition sizes.
	LeftSamplesKey  = "lce.split.left"
	RightSamplesKey = "lce.split.right"

	// TreeDepthKey records the depth of a fitted tree.
	TreeDepthKey = "lce.tree.depth"

	// LeavesKey records the number of leaves of a fitted tree.
	LeavesKey = "lce.tree.leaves"

	// EstimatorsKey records the number of members of a bagged ensemble.
	EstimatorsKey = "lce.ensemble.estimators"
)

// Error and Warning Context
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// SuggestionKey provides helpful suggestions for resolving issues.
	SuggestionKey = "error.suggestion"
)

// Hyperparameters
const (
	// HyperParamsKey contains estimator hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// LearningRateKey records the booster learning rate.
	LearningRateKey = "hyperparams.learning_rate"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit     = "fit"
	OperationPredict = "predict"
	OperationScore   = "score"
	OperationSearch  = "search"

	PhaseTraining   = "training"
	PhaseValidation = "validation"
	PhaseInference  = "inference"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorInvalidInput      = "INVALID_INPUT"
	ErrorFitFailed         = "FIT_FAILED"
)
