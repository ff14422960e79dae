package notify

const emailHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Price extraction failed</title>
  <style>
    body {
      margin: 0;
      padding: 24px;
      background-color: #f3f4f6;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      color: #111827;
      line-height: 1.5;
    }

    .container {
      max-width: 640px;
      margin: 0 auto;
      background: #ffffff;
      border-radius: 8px;
      border: 1px solid #e5e7eb;
      overflow: hidden;
    }

    .header {
      padding: 20px 24px;
      background: linear-gradient(135deg, #7f1d1d 0%, #451a03 100%);
      color: #ffffff;
    }

    .headline {
      font-size: 22px;
      font-weight: 700;
      margin-bottom: 4px;
    }

    .subtitle {
      font-size: 14px;
      opacity: 0.9;
    }

    .section {
      padding: 16px 24px;
      border-top: 1px solid #f3f4f6;
    }

    .section-title {
      font-size: 11px;
      font-weight: 700;
      color: #6b7280;
      text-transform: uppercase;
      letter-spacing: 0.1em;
      margin-bottom: 12px;
    }

    .meta-label {
      padding: 6px 16px 6px 0;
      color: #6b7280;
      font-weight: 500;
      white-space: nowrap;
      width: 120px;
    }

    table {
      width: 100%;
      font-size: 14px;
      border-collapse: collapse;
    }

    .attempts td {
      padding: 6px 8px 6px 0;
      border-bottom: 1px solid #f3f4f6;
      vertical-align: top;
    }

    .failed {
      color: #b91c1c;
    }

    .ok {
      color: #15803d;
    }

    .reason-box {
      background: #fef2f2;
      border-left: 3px solid #7f1d1d;
      padding: 12px 16px;
      font-size: 13px;
      color: #374151;
      border-radius: 0 4px 4px 0;
    }

    .footer {
      padding: 16px 24px;
      font-size: 12px;
      color: #9ca3af;
      text-align: center;
      background: #f9fafb;
      border-top: 1px solid #f3f4f6;
    }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <div class="headline">Price extraction failed</div>
      <div class="subtitle">No source produced a trustworthy snapshot. Nothing was written.</div>
    </div>

    <div class="section">
      <div class="section-title">Run Details</div>
      <table>
        <tr><td class="meta-label">Time</td><td>{{.Time.Format "02 Jan 2006 3:04 PM MST"}}</td></tr>
        {{if .Host}}<tr><td class="meta-label">Host</td><td>{{.Host}}</td></tr>{{end}}
        <tr><td class="meta-label">Failures today</td><td>{{.FailuresToday}}</td></tr>
      </table>
    </div>

    {{if .Reason}}
    <div class="section">
      <div class="section-title">Reason</div>
      <div class="reason-box">{{.Reason}}</div>
    </div>
    {{end}}

    {{if .Attempts}}
    <div class="section">
      <div class="section-title">Attempts</div>
      <table class="attempts">
        {{range .Attempts}}
        <tr>
          <td>{{.Source}} #{{.Number}}</td>
          <td>{{.Elapsed}}</td>
          <td class="{{if .Failed}}failed{{else}}ok{{end}}">{{.Result}}</td>
        </tr>
        {{end}}
      </table>
    </div>
    {{end}}

    <div class="footer">
      Sent once per report day until a run succeeds.
    </div>
  </div>
</body>
</html>`
