package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/sadhurshan/esai-sub000/internal/schema"
)

// 报价综合评分权重
var quoteWeights = schema.QuoteWeights{Price: 0.45, LeadTime: 0.20, Quality: 0.25, Risk: 0.10}

type quote struct {
	supplierID   string
	supplierName string
	price        float64
	lead         float64
	quality      float64
	risk         float64
}

// minMax 归一化到 [0,1]；lowerBetter 时反转；全部相等时每项得 1
func minMax(values []float64, lowerBetter bool) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	for i, v := range values {
		if span == 0 {
			out[i] = 1
			continue
		}
		n := (v - lo) / span
		if lowerBetter {
			n = 1 - n
		}
		out[i] = n
	}
	return out
}

func readQuotes(req *Request) []quote {
	in := asArgs(req.Inputs)
	rows := in.list("quotes", "rankings", "suppliers")
	quotes := make([]quote, 0, len(rows))
	for i, row := range rows {
		id := row.str("", "supplier_id", "s", "supplier", "id")
		if id == "" {
			id = fmt.Sprintf("supplier-%d", i+1)
		}
		quotes = append(quotes, quote{
			supplierID:   id,
			supplierName: row.str(id, "supplier_name", "name"),
			price:        clamp(row.num(0, "price", "unit_price", "total"), 0, 1e12),
			lead:         clamp(row.num(0, "lead_time_days", "lead", "lead_time"), 0, maxLeadDays),
			quality:      unitFraction(row.num(0.5, "quality", "quality_score")),
			risk:         unitFraction(row.num(0.5, "risk", "risk_score")),
		})
	}
	return quotes
}

// CompareQuotes 报价比较
func CompareQuotes(_ context.Context, _ *Env, req *Request) (*Output, error) {
	quotes := readQuotes(req)

	prices := make([]float64, len(quotes))
	leads := make([]float64, len(quotes))
	qualities := make([]float64, len(quotes))
	risks := make([]float64, len(quotes))
	for i, q := range quotes {
		prices[i], leads[i], qualities[i], risks[i] = q.price, q.lead, q.quality, q.risk
	}
	priceScore := minMax(prices, true)
	leadScore := minMax(leads, true)
	qualityScore := minMax(qualities, false)
	riskScore := minMax(risks, true)

	rankings := make([]schema.QuoteRanking, len(quotes))
	for i, q := range quotes {
		composite := quoteWeights.Price*priceScore[i] +
			quoteWeights.LeadTime*leadScore[i] +
			quoteWeights.Quality*qualityScore[i] +
			quoteWeights.Risk*riskScore[i]
		rankings[i] = schema.QuoteRanking{
			SupplierID:      q.supplierID,
			SupplierName:    q.supplierName,
			Price:           round2(q.price),
			LeadTimeDays:    q.lead,
			Quality:         round4(q.quality),
			Risk:            round4(q.risk),
			NormalizedScore: clamp(round2(composite*100), 0, 100),
		}
	}
	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].NormalizedScore > rankings[j].NormalizedScore
	})
	for i := range rankings {
		rankings[i].Rank = i + 1
	}

	payload := schema.CompareQuotesPayload{
		Rankings: rankings,
		Weights:  quoteWeights,
	}
	summary := "No quotes supplied for comparison"
	if len(rankings) > 0 {
		top := rankings[0]
		payload.Recommendation = top.SupplierID
		summary = fmt.Sprintf("%s ranks first with score %.2f across %d quote(s)", top.SupplierID, top.NormalizedScore, len(rankings))
		if len(rankings) > 1 {
			summary += fmt.Sprintf("; runner-up %s at %.2f", rankings[1].SupplierID, rankings[1].NormalizedScore)
		}
	}
	return &Output{Summary: summary, Payload: payload}, nil
}
