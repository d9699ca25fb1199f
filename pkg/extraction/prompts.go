package extraction

// NoDataSentinel is what the extraction stage answers when nothing qualifies.
const NoDataSentinel = "NO VALID DATA FOUND"

const extractionSystemPrompt = `You are an expert data extraction agent for environmental reports.`

const extractionUserPrompt = `
You are an expert data extraction agent for environmental and financial reports.

--- CRITICAL RULES (MUST FOLLOW) ---
1. **PRIORITY**: Extract data from markdown tables FIRST (identified by | header | format)
2. If you cannot find ANY data point with COMPLETE information (indicator + value + context), output: "NO VALID DATA FOUND"
3. NEVER extract table headers, column names, or row labels without their corresponding values
4. STRICTLY separate numerical values and units.

--- OUTPUT FORMAT (MANDATORY) ---
You MUST output ONE line per data point in this EXACT format:
[Indicator name] | [NUMBER_ONLY] | [UNIT] | page [X]

EXAMPLES OF CORRECT OUTPUT:
Public debt for São Tomé 2023 | 54.6 | % of GDP | page 5
Public debt for São Tomé 2030 projection | 63.2 | % of GDP | page 5
Total project cost Angola | 400000000 | USD | page 3

EXAMPLES OF INCORRECT OUTPUT (DO NOT DO THIS):
- Public debt increase from 54.6% of GDP in 2023 to 63.2% by 2030
- Debt Sustainability Analysis (DSA) for São Tomé and Principe
- Energy sector reforms may lead to increased costs

--- WHAT TO EXTRACT ---
- Numerical indicators with clear context (GDP %, amounts, counts, percentages)
- Financial figures (loans, budgets, costs)
- Quantitative targets (population affected, jobs created)

--- WHAT NOT TO EXTRACT ---
- Titles, headings, or document names
- Qualitative statements without numbers
- Projections without specific values

Context to analyze:
{{.content}}

Output (one line per data point, or "NO VALID DATA FOUND"):
`

const formattingSystemPrompt = `You are a JSON formatting engine. Output ONLY JSON following the schema:
{{.format_instructions}}`

const formattingUserPrompt = `
You are a strict JSON formatter. Your task is to take the extracted data list provided below and convert it STRICTLY into a valid JSON object that conforms to the schema provided.

--- STRUCTURAL & CONTENT RULES ---
1. **Schema Adherence:** You MUST strictly adhere to the provided JSON schema.

2. **Value Handling:** If a required fact cannot be determined from the input data list, set the 'value' field to "data not provided". DO NOT leave this field blank.

3. **Core Fields:** The 'key', 'value', 'unit', and 'page' fields MUST be taken directly from the input data list.
   - Ensure 'value' contains ONLY numbers (no %, no $). Move symbols to 'unit'.

4. **"indicator_category" Logic:**
   CRITICAL: You MUST use ONLY the exact values below (with underscores, lowercase).
   DO NOT use general category names like "FINANCIAL" or "ENVIRONMENTAL".

   Choose ONE of these EXACT values:

   • climate_emissions → for CO2, GHG, carbon emissions, methane, greenhouse gases
   • climate_temperature → for temperature rise, global warming metrics
   • biodiversity → for species count, habitat loss, endangered species, extinction
   • deforestation → for forest loss, cleared area, tree cutting, logging
   • water_quality → for water pollution, contamination, water safety indices
   • pollution → for air pollution, waste, toxic substances, pollutants
   • energy → for renewable energy, fossil fuels, energy consumption
   • finance_loan → for loan amounts, credit, financing
   • finance_cost → for total cost, expenses, spending
   • finance_budget → for budget allocations, funds, appropriations
   • finance_gdp → for GDP, economic output, national income
   • social_population → for population size, people affected, beneficiaries, households
   • social_employment → for jobs created, employment, unemployment, workers
   • social_health → for health indicators, mortality, disease, healthcare
   • infrastructure_area → for land area, surface, hectares, square kilometers
   • infrastructure_length → for roads, pipelines, distance, kilometers
   • temporal_duration → for project duration, implementation period, timeline
   • temporal_deadline → for deadlines, completion dates, target dates
   • other → if none of the above fit

5. **"chart_type" Logic:** For the "chart_type" field, use the most appropriate visualization type based on these definitions:
   - **LineChart:** Use ONLY for data showing a variable's evolution over MULTIPLE time periods (e.g., "GDP 2020-2025", "inflation trend"). NEVER use for single data points.
   - **BarChart:** Use for comparing data between different categories or when there is a single clear numeric value that is part of a larger set (e.g. "Budget Allocations").
   - **PieChart:** Use ONLY when the data represents a percentage share summing to 100% (e.g. "Energy Mix").
   - **ChoroplethMap:** Use when the data is clearly linked to a specific geographical location (e.g., city, region, country name).
   - **Unknown:** Use if the data is a single isolated number (like a deadline, a duration, or a total cost) that doesn't fit a comparison or trend.

6. **Confidence Score:** You MUST estimate the **confidence_score** (0.0 to 1.0) for each point based on the clarity and explicitness of the data in the list.

7. **JSON EXAMPLE:** Here is a valid example output structure:
{
  "extracted_points": [
    {
      "key": "Total loan amount for Angola Water Project",
      "value": "50000000",
      "unit": "USD",
      "page": 3,
      "confidence_score": 0.95,
      "chart_type": "BarChart",
      "indicator_category": "finance_loan"
    }
  ]
}

8. Output ONLY the JSON object following the schema.

Data List to Format:
---
{{.llama_output}}
---
`

// Queries drive retrieval of the chunks most likely to hold figures.
var Queries = []string{
	"total project cost loan amount financing budget allocation",
	"key quantitative indicators table figures percentages",
	"greenhouse gas emissions energy water forest biodiversity indicators",
	"beneficiaries population households jobs created targets",
	"project duration implementation period completion date",
}
