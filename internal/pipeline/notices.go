package pipeline

// ConsentNotice is the informed-consent text shown before first use.
const ConsentNotice = `INFORMED CONSENT & DISCLAIMER

By using CareLedger, you acknowledge that:

1. This system provides DECISION SUPPORT ONLY, not medical diagnosis or treatment
2. All information should be reviewed with qualified healthcare providers
3. This system does not replace professional medical advice
4. In emergencies, contact emergency services immediately
5. Your medical data is stored securely but you should maintain original records
6. The AI may make errors - always verify important information with your doctor

This system is designed to help you and your healthcare providers make better-informed
decisions by maintaining a comprehensive medical history, but it is not a substitute
for professional medical judgment.`

// DataUsagePolicy describes how stored records are handled.
const DataUsagePolicy = `DATA USAGE POLICY

- Your medical records are isolated to your patient ID
- No data is shared with third parties
- Embeddings are derived from your records but cannot reconstruct original data
- You can request deletion of all your data at any time
- System can be deployed locally for complete privacy control
- AI processing uses your data only for your own medical memory`
