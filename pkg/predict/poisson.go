package predict

import "math"

// poissonPMF returns P(X = k) for a Poisson variable with mean lambda.
func poissonPMF(k int, lambda float64) float64 {
	if lambda <= 0 {
		if k == 0 {
			return 1.0
		}
		return 0.0
	}
	logP := float64(k)*math.Log(lambda) - lambda - logFactorial(k)
	return math.Exp(logP)
}

func logFactorial(k int) float64 {
	var sum float64
	for i := 2; i <= k; i++ {
		sum += math.Log(float64(i))
	}
	return sum
}

// OutcomeProbs holds the three-way result probabilities for a fixture.
type OutcomeProbs struct {
	HomeWin float64
	Draw    float64
	AwayWin float64
}

// OutcomeProbabilities derives 1X2 probabilities from the expected goals
// of each side, treating the two scores as independent Poisson draws.
// The score grid is truncated at the configured maximum per side and the
// mass renormalized, so the three probabilities always sum to 1.
func OutcomeProbabilities(homeLambda, awayLambda float64) OutcomeProbs {
	max := Config.PoissonGridMax

	homePMF := make([]float64, max+1)
	awayPMF := make([]float64, max+1)
	for k := 0; k <= max; k++ {
		homePMF[k] = poissonPMF(k, homeLambda)
		awayPMF[k] = poissonPMF(k, awayLambda)
	}

	var probs OutcomeProbs
	var total float64
	for h := 0; h <= max; h++ {
		for a := 0; a <= max; a++ {
			p := homePMF[h] * awayPMF[a]
			total += p
			switch {
			case h > a:
				probs.HomeWin += p
			case h < a:
				probs.AwayWin += p
			default:
				probs.Draw += p
			}
		}
	}

	if total > 0 {
		probs.HomeWin /= total
		probs.Draw /= total
		probs.AwayWin /= total
	}
	return probs
}

// OverProbability returns P(total goals > line). The sum of two
// independent Poisson scores is Poisson with the summed mean, so the
// tail is one minus the CDF at the line.
func OverProbability(homeLambda, awayLambda, line float64) float64 {
	lambda := homeLambda + awayLambda
	threshold := int(math.Floor(line))

	var cdf float64
	for k := 0; k <= threshold; k++ {
		cdf += poissonPMF(k, lambda)
	}
	if cdf > 1 {
		cdf = 1
	}
	return 1 - cdf
}

// BTTSProbability returns the probability that both sides score.
func BTTSProbability(homeLambda, awayLambda float64) float64 {
	return (1 - poissonPMF(0, homeLambda)) * (1 - poissonPMF(0, awayLambda))
}
