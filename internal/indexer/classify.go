package indexer

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// unknownType is recorded when a document has no extractable text.
const unknownType = "Unknown"

// typeLabels maps document type names to short descriptions. The
// descriptions are embedded once and the document embedding is
// compared against them by cosine similarity.
var typeLabels = []struct {
	name        string
	description string
}{
	// Legal & Compliance
	{"Contract", "Legal contract between parties with terms and signatures."},
	{"Legal Agreement", "Legal obligations, rights, or terms between parties."},
	{"NDA", "Non-disclosure agreement restricting sharing confidential information."},
	{"SLA", "Service level agreement with performance standards and responsibilities."},
	{"Court Order", "Orders or judgments issued by a court."},
	{"Legal Complaint", "Formal legal complaint filed in court."},
	{"Terms and Conditions", "Rules and legal agreements for using products or services."},
	{"Privacy Policy", "Explains how personal data is collected and used."},
	{"Policy Document", "Official rules or guidelines that must be followed."},
	{"Permit", "Legal permission granted for specific activities."},
	{"License", "Authorization document granting legal permission."},
	{"Certificate", "Official document verifying a fact or achievement."},
	{"Will", "Estate distribution instructions after death."},
	// Finance & Accounting
	{"Financial Report", "Financial results, performance, or analysis."},
	{"Income Statement", "Revenue and expenses over a period."},
	{"Balance Sheet", "Assets, liabilities, and equity snapshot."},
	{"Cash Flow Statement", "Cash inflows and outflows over a period."},
	{"Budget", "Planned income and expenses for a period."},
	{"Invoice", "Bill for payment with items and totals."},
	{"Receipt", "Acknowledgment of payment received."},
	{"Bank Statement", "Account transactions and balances."},
	{"Audit Report", "Independent financial audit opinion."},
	{"Payroll Report", "Employee wages and deductions summary."},
	{"Purchase Order", "Authorization to buy goods or services."},
	{"Bill of Lading", "Receipt of goods for shipment."},
	{"Statement of Work", "Project deliverables, scope, and responsibilities."},
	// Business & Operations
	{"Business Proposal", "Proposes plans, services, or products to a client."},
	{"Business Plan", "Business strategies, objectives, and forecasts."},
	{"RFP Response", "Response to a request for proposal."},
	{"SOP", "Standard operating procedure with step-by-step instructions."},
	{"Project Report", "Project progress, findings, or results."},
	{"Meeting Minutes", "Discussion points and decisions from meetings."},
	{"Memo", "Formal internal communication message."},
	{"Agenda", "List of topics to be discussed in a meeting."},
	{"Checklist", "Tasks or items to complete or verify."},
	{"Schedule", "Timeline or plan with dates and times."},
	{"Log File", "System, server, or application log entries."},
	{"User Manual", "Instructions for using a product or system."},
	{"Technical Specification", "Detailed technical requirements and designs."},
	{"Runbook", "Operational procedures for incidents or maintenance."},
	{"Architecture Diagram", "System architecture documentation overview."},
	// Sales & Marketing
	{"Press Release", "Public announcement of news or events."},
	{"Brochure", "Marketing or informational pamphlet."},
	{"Advertisement", "Promotes products, services, or events."},
	{"Price List", "Catalog of products or services with prices."},
	{"Statement of Capabilities", "Company capabilities and differentiators."},
	// HR & Talent
	{"Resume", "Work experience and skills summary."},
	{"Cover Letter", "Letter expressing job interest accompanying a resume."},
	{"Offer Letter", "Employment offer details and terms."},
	{"Job Description", "Role responsibilities and required qualifications."},
	{"Performance Review", "Employee performance evaluation."},
	// Medical & Insurance
	{"Medical Report", "Medical or health record details and assessments."},
	{"Prescription", "Medication or treatment directive by a clinician."},
	{"Lab Result", "Medical or laboratory test outcomes."},
	{"Patient Summary", "Patient medical history and conditions."},
	{"Insurance Claim", "Request to insurer for reimbursement."},
	{"EOB", "Explanation of benefits document from insurer."},
	// Research & Education
	{"Research Paper", "Academic research findings and analysis."},
	{"White Paper", "Authoritative information or solution on a topic."},
	{"Case Study", "Detailed analysis of a specific example."},
	{"Thesis", "Lengthy academic dissertation."},
	{"Lecture Notes", "Notes from educational lectures."},
	{"Transcript", "Verbatim record of spoken words or courses."},
	{"Dataset Description", "Metadata and description for datasets."},
	// IT & Security
	{"Security Policy", "Information security rules and standards."},
	{"Vulnerability Report", "Security weaknesses and remediation."},
	{"Penetration Test Report", "Results of simulated attacks and fixes."},
	{"Incident Report", "Security incident details and timeline."},
	{"Change Request", "Proposed system change and approvals."},
	{"Release Notes", "Software release changes and fixes."},
	// Government & Public
	{"Notice", "Official information or updates to the public."},
	{"Regulatory Filing", "Submission to a regulator or exchange."},
	// Misc
	{"FAQ", "Frequently asked questions and answers."},
	{"Summary", "Condensed version of longer content."},
	{"Newsletter", "Periodic news or updates for readers."},
	{"Unclassified", "Document type cannot be determined."},
}

// classifier assigns a whole-document type by comparing the document
// embedding against the label description embeddings.
type classifier struct {
	embedder embedder

	once      sync.Once
	labelVecs [][]float32
	labelErr  error
}

func newClassifier(e embedder) *classifier {
	return &classifier{embedder: e}
}

// Classify returns the best matching type for text. Label embeddings
// are computed on first use and reused for the life of the process.
func (c *classifier) Classify(ctx context.Context, text string) (string, error) {
	if NormalizeText(text) == "" {
		return unknownType, nil
	}

	c.once.Do(func() {
		descriptions := make([]string, len(typeLabels))
		for i, l := range typeLabels {
			descriptions[i] = l.description
		}
		c.labelVecs, c.labelErr = c.embedder.EmbedDocuments(ctx, descriptions)
	})
	if c.labelErr != nil {
		return "", fmt.Errorf("embedding type labels: %w", c.labelErr)
	}

	docVecs, err := c.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return "", fmt.Errorf("embedding document text: %w", err)
	}

	best := 0
	bestScore := math.Inf(-1)
	for i, labelVec := range c.labelVecs {
		if score := cosineSimilarity(docVecs[0], labelVec); score > bestScore {
			bestScore = score
			best = i
		}
	}
	return typeLabels[best].name, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
