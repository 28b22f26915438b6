package scoring_test

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/okian/dotrep/internal/domain/model"
	scoring "github.com/okian/dotrep/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2025, 9, 28, 12, 0, 0, 0, time.UTC)

func daysAgo(d float64) time.Time {
	return now.Add(-time.Duration(d * 24 * float64(time.Hour)))
}

func monthsAgo(m int) time.Time {
	return now.AddDate(0, -m, 0)
}

func at(ts time.Time) model.Event {
	return model.Event{Timestamp: ts}
}

// idealUser has a long, clean history.
func idealUser() model.WalletActivity {
	return model.WalletActivity{
		Acala: model.Acala{
			LoanRepaid: []model.Event{at(monthsAgo(2)), at(monthsAgo(6)), at(monthsAgo(11))},
		},
		HydraDX:       model.HydraDX{OmnipoolLpAdded: []model.Event{at(monthsAgo(1))}},
		Bifrost:       model.Bifrost{StakingJoined: []model.Event{at(now.AddDate(-1, 0, 0))}},
		Moonbeam:      model.Moonbeam{GovernanceVoted: []model.Event{at(monthsAgo(3))}},
		PolkadotRelay: model.PolkadotRelay{IdentitySet: []model.Event{at(now.AddDate(-2, 0, 0))}},
		Generic: model.Generic{
			WalletCreationDate:        now.AddDate(-3, 0, 0),
			TransactionCountLastMonth: 50,
		},
	}
}

// riskyUser was liquidated recently.
func riskyUser() model.WalletActivity {
	return model.WalletActivity{
		Acala: model.Acala{
			LoanRepaid:     []model.Event{at(monthsAgo(12))},
			LoanLiquidated: []model.Event{at(monthsAgo(1))},
		},
		Generic: model.Generic{
			WalletCreationDate:        monthsAgo(7),
			TransactionCountLastMonth: 5,
		},
	}
}

func emptyUser() model.WalletActivity {
	return model.WalletActivity{Generic: model.Generic{WalletCreationDate: now}}
}

func TestDecay(t *testing.T) {
	Convey("Given the default recency window", t, func() {
		Convey("When the event is brand new", func() {
			So(scoring.Decay(now, now), ShouldEqual, 1.0)
		})

		Convey("When the event is exactly 180 days old", func() {
			So(scoring.Decay(daysAgo(180), now), ShouldEqual, 1.0)
		})

		Convey("When the event is at the midpoint of the window", func() {
			So(scoring.Decay(daysAgo(455), now), ShouldAlmostEqual, 0.5, 1e-9)
		})

		Convey("When the event is exactly 730 days old", func() {
			So(scoring.Decay(daysAgo(730), now), ShouldEqual, 0.0)
		})

		Convey("When the event is 1000 days old", func() {
			So(scoring.Decay(daysAgo(1000), now), ShouldEqual, 0.0)
		})

		Convey("When the event is in the future", func() {
			So(scoring.Decay(now.Add(72*time.Hour), now), ShouldEqual, 1.0)
		})

		Convey("When ages sweep the window", func() {
			Convey("Then the factor never increases and stays in [0, 1]", func() {
				prev := 1.0
				for d := 0.0; d <= 1000; d += 7.5 {
					f := scoring.Decay(daysAgo(d), now)
					So(f, ShouldBeBetweenOrEqual, 0.0, 1.0)
					So(f, ShouldBeLessThanOrEqualTo, prev)
					prev = f
				}
			})
		})
	})

	Convey("Given a custom decay window", t, func() {
		engine := scoring.NewEngine(scoring.WithDecayWindow(30, 60))

		Convey("Then the custom bounds apply", func() {
			So(engine.Decay(daysAgo(30), now), ShouldEqual, 1.0)
			So(engine.Decay(daysAgo(45), now), ShouldAlmostEqual, 0.5, 1e-9)
			So(engine.Decay(daysAgo(60), now), ShouldEqual, 0.0)
		})

		Convey("When the window is inverted", func() {
			engine := scoring.NewEngine(scoring.WithDecayWindow(60, 30))

			Convey("Then the default window is kept", func() {
				So(engine.Decay(daysAgo(180), now), ShouldEqual, 1.0)
				So(engine.Decay(daysAgo(455), now), ShouldAlmostEqual, 0.5, 1e-9)
			})
		})
	})
}

func TestNormalize(t *testing.T) {
	Convey("Given the default normalization", t, func() {
		Convey("Then the anchors map to the range bounds", func() {
			So(scoring.Normalize(0), ShouldEqual, 300)
			So(scoring.Normalize(1500), ShouldEqual, 850)
			So(scoring.Normalize(750), ShouldEqual, 575)
		})

		Convey("Then out of range raw scores clamp", func() {
			So(scoring.Normalize(-1500), ShouldEqual, 300)
			So(scoring.Normalize(-1e12), ShouldEqual, 300)
			So(scoring.Normalize(1e12), ShouldEqual, 850)
		})

		Convey("Then non-finite raw scores stay in range", func() {
			So(scoring.Normalize(math.NaN()), ShouldEqual, 300)
			So(scoring.Normalize(math.Inf(1)), ShouldEqual, 850)
			So(scoring.Normalize(math.Inf(-1)), ShouldEqual, 300)
		})

		Convey("Then results round to the nearest integer", func() {
			// 300 + 100/1500*550 = 336.67
			So(scoring.Normalize(100), ShouldEqual, 337)
			// 300 + 50/1500*550 = 318.33
			So(scoring.Normalize(50), ShouldEqual, 318)
		})
	})

	Convey("Given a custom assumed maximum", t, func() {
		engine := scoring.NewEngine(scoring.WithAssumedMaxRaw(100))

		Convey("Then the ceiling moves", func() {
			So(engine.Normalize(100), ShouldEqual, 850)
			So(engine.Normalize(50), ShouldEqual, 575)
		})

		Convey("When the maximum is not positive", func() {
			engine := scoring.NewEngine(scoring.WithAssumedMaxRaw(0))

			Convey("Then the default is kept", func() {
				So(engine.Normalize(1500), ShouldEqual, 850)
			})
		})
	})
}

func TestComputeReputationScore(t *testing.T) {
	Convey("Given an empty snapshot", t, func() {
		Convey("Then it scores the minimum", func() {
			So(scoring.ComputeReputationScore(emptyUser(), now), ShouldEqual, 300)
		})

		Convey("When the snapshot is the zero value", func() {
			Convey("Then an unknown creation date adds nothing", func() {
				So(scoring.ComputeReputationScore(model.WalletActivity{}, now), ShouldEqual, 300)
			})
		})
	})

	Convey("Given single-factor snapshots", t, func() {
		Convey("When one fresh repayment is present", func() {
			w := emptyUser()
			w.Acala.LoanRepaid = []model.Event{at(now)}
			So(scoring.ComputeReputationScore(w, now), ShouldEqual, 337)
		})

		Convey("When the repayment carries a value", func() {
			w := emptyUser()
			w.Acala.LoanRepaid = []model.Event{{Timestamp: now, Value: 3}}
			// raw 300 -> 300 + 110
			So(scoring.ComputeReputationScore(w, now), ShouldEqual, 410)
		})

		Convey("When the wallet is exactly one fixed year old", func() {
			w := model.WalletActivity{Generic: model.Generic{WalletCreationDate: daysAgo(365)}}
			So(scoring.ComputeReputationScore(w, now), ShouldEqual, 318)
		})

		Convey("When only transactions are present", func() {
			w := emptyUser()
			w.Generic.TransactionCountLastMonth = 1500
			So(scoring.ComputeReputationScore(w, now), ShouldEqual, 850)
		})

		Convey("When the creation date is in the future", func() {
			w := model.WalletActivity{Generic: model.Generic{WalletCreationDate: now.AddDate(1, 0, 0)}}
			So(scoring.ComputeReputationScore(w, now), ShouldEqual, 300)
		})
	})

	Convey("Given the reference personas", t, func() {
		ideal := scoring.ComputeReputationScore(idealUser(), now)
		risky := scoring.ComputeReputationScore(riskyUser(), now)

		Convey("Then the ideal user outscores the risky user", func() {
			So(ideal, ShouldBeGreaterThan, risky)
		})

		Convey("Then both scores are in range", func() {
			So(ideal, ShouldBeBetweenOrEqual, scoring.MinScore, scoring.MaxScore)
			So(risky, ShouldBeBetweenOrEqual, scoring.MinScore, scoring.MaxScore)
		})

		Convey("Then the risky user clamps to the floor", func() {
			So(risky, ShouldEqual, 300)
		})
	})

	Convey("Given a snapshot scored repeatedly", t, func() {
		Convey("Then the result is identical", func() {
			first := scoring.ComputeReputationScore(idealUser(), now)
			for i := 0; i < 10; i++ {
				So(scoring.ComputeReputationScore(idealUser(), now), ShouldEqual, first)
			}
		})
	})
}

func TestMonotonicity(t *testing.T) {
	Convey("Given a range of base snapshots", t, func() {
		bases := []model.WalletActivity{emptyUser(), idealUser(), riskyUser()}
		ages := []float64{0, 90, 200, 455, 729, 900}

		Convey("When a repayment is added", func() {
			Convey("Then the score never decreases", func() {
				for _, base := range bases {
					before := scoring.ComputeReputationScore(base, now)
					for _, d := range ages {
						w := base
						w.Acala.LoanRepaid = append(append([]model.Event{}, base.Acala.LoanRepaid...), at(daysAgo(d)))
						So(scoring.ComputeReputationScore(w, now), ShouldBeGreaterThanOrEqualTo, before)
					}
				}
			})
		})

		Convey("When a liquidation is added", func() {
			Convey("Then the score never increases", func() {
				for _, base := range bases {
					before := scoring.ComputeReputationScore(base, now)
					for _, d := range ages {
						w := base
						w.Acala.LoanLiquidated = append(append([]model.Event{}, base.Acala.LoanLiquidated...), at(daysAgo(d)))
						So(scoring.ComputeReputationScore(w, now), ShouldBeLessThanOrEqualTo, before)
					}
				}
			})
		})
	})
}

func TestEngine_Evaluate(t *testing.T) {
	Convey("Given the default engine", t, func() {
		engine := scoring.NewEngine()

		Convey("When evaluating the ideal persona", func() {
			res := engine.Evaluate(idealUser(), now)

			Convey("Then every factor is reported in summation order", func() {
				So(res.Factors, ShouldHaveLength, 8)
				So(res.Factors[0].Category, ShouldEqual, model.WalletAge)
				So(res.Factors[1].Category, ShouldEqual, model.TxCount)
				for i, c := range model.Categories() {
					So(res.Factors[i+2].Category, ShouldEqual, c)
				}
			})

			Convey("Then contributions add up to the raw score", func() {
				var sum float64
				for _, f := range res.Factors {
					sum += f.Contribution
				}
				So(sum, ShouldAlmostEqual, res.Raw, 1e-9)
			})

			Convey("Then the score is the normalized raw score", func() {
				So(res.Score, ShouldEqual, engine.Normalize(res.Raw))
				So(res.Tier, ShouldEqual, scoring.TierFor(res.Score))
			})

			Convey("Then fully decayed events are counted but contribute nothing", func() {
				identity := res.Factors[len(res.Factors)-1]
				So(identity.Category, ShouldEqual, model.IdentitySet)
				So(identity.Count, ShouldEqual, 1)
				So(identity.Contribution, ShouldEqual, 0.0)
			})

			Convey("Then the transaction factor reports the count", func() {
				So(res.Factors[1].Count, ShouldEqual, 50)
				So(res.Factors[1].Contribution, ShouldEqual, 50.0)
			})
		})
	})

	Convey("Given custom weights", t, func() {
		w := scoring.DefaultWeights()
		w.TxCount = 10
		engine := scoring.NewEngine(scoring.WithWeights(w))

		Convey("Then they replace the defaults", func() {
			a := emptyUser()
			a.Generic.TransactionCountLastMonth = 15
			// raw 150 -> 300 + 55
			So(engine.Evaluate(a, now).Score, ShouldEqual, 355)
		})
	})

	Convey("Given concurrent evaluations", t, func() {
		engine := scoring.NewEngine()
		want := engine.Evaluate(idealUser(), now).Score

		Convey("Then every goroutine gets the same score", func() {
			var wg sync.WaitGroup
			results := make(chan int, 16)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					results <- engine.Evaluate(idealUser(), now).Score
				}()
			}
			wg.Wait()
			close(results)
			for got := range results {
				So(got, ShouldEqual, want)
			}
		})
	})
}

func TestWalletAgeYears(t *testing.T) {
	Convey("Given wallet creation dates", t, func() {
		Convey("Then a fixed 365-day year is the unit", func() {
			So(scoring.WalletAgeYears(daysAgo(365), now), ShouldAlmostEqual, 1.0, 1e-9)
			So(scoring.WalletAgeYears(daysAgo(730), now), ShouldAlmostEqual, 2.0, 1e-9)
		})

		Convey("Then an unknown date has no age", func() {
			So(scoring.WalletAgeYears(time.Time{}, now), ShouldEqual, 0.0)
		})

		Convey("Then a future date has a negative age", func() {
			So(scoring.WalletAgeYears(now.Add(365*24*time.Hour), now), ShouldAlmostEqual, -1.0, 1e-9)
		})
	})
}

func TestWeightsFromMap(t *testing.T) {
	Convey("Given weight overrides", t, func() {
		Convey("When all names are known", func() {
			w, err := scoring.WeightsFromMap(map[string]float64{
				"loan_liquidated": -500,
				"wallet_age":      10,
			})

			Convey("Then they overlay the defaults", func() {
				So(err, ShouldBeNil)
				So(w.Weight(model.LoanLiquidated), ShouldEqual, -500.0)
				So(w.Weight(model.WalletAge), ShouldEqual, 10.0)
				So(w.Weight(model.LoanRepaid), ShouldEqual, 100.0)
			})
		})

		Convey("When a name is unknown", func() {
			_, err := scoring.WeightsFromMap(map[string]float64{"loan_repayed": 1})

			Convey("Then it is rejected", func() {
				So(err, ShouldWrap, scoring.ErrUnknownCategory)
			})
		})

		Convey("When the map is empty", func() {
			w, err := scoring.WeightsFromMap(nil)
			So(err, ShouldBeNil)
			So(w, ShouldResemble, scoring.DefaultWeights())
		})
	})
}

func TestTierFor(t *testing.T) {
	Convey("Given score bands", t, func() {
		So(scoring.TierFor(300), ShouldEqual, scoring.TierPoor)
		So(scoring.TierFor(579), ShouldEqual, scoring.TierPoor)
		So(scoring.TierFor(580), ShouldEqual, scoring.TierFair)
		So(scoring.TierFor(670), ShouldEqual, scoring.TierGood)
		So(scoring.TierFor(740), ShouldEqual, scoring.TierVeryGood)
		So(scoring.TierFor(800), ShouldEqual, scoring.TierExcellent)
		So(scoring.TierFor(850), ShouldEqual, scoring.TierExcellent)
	})
}
