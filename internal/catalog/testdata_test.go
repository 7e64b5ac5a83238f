package catalog

const testSeed = `
tags:
  - {name: Accessibility, slug: accessibility}
  - {name: Dashboard, slug: dashboard}
  - {name: Forms, slug: forms}
labels:
  - {name: New, color: "#16a34a", text_color: "#ffffff"}
  - {name: Pro, color: "#7c3aed", text_color: "#ffffff"}
frameworks:
  - slug: react
    name: React
    title: React UI libraries
    website: https://react.dev
    tags: [accessibility]
  - slug: vue
    name: Vue
    website: https://vuejs.org
libraries:
  - slug: react-aria
    name: React Aria
    description: Accessible primitives for design systems
    framework: react
    tags: [accessibility, forms]
    labels: [New]
    npm_package: react-aria
    github_stars: 12000
    npm_downloads: 900000
    total_components: 45
    styling: headless
    pricing: free
    last_update: "2026-09-01"
  - slug: ark-ui
    name: Ark UI
    description: Headless components for React and Vue
    framework: react
    frameworks: [react, vue]
    tags: [accessibility]
    npm_package: "@ark-ui/react"
    github_stars: 3500
    npm_downloads: 120000
    total_components: 34
    styling: headless
    pricing: free
    last_update: "2026-10-01"
  - slug: vuetify
    name: Vuetify
    description: Material 100% Vue
    framework: vue
    tags: [dashboard]
    labels: [Pro]
    npm_package: vuetify
    github_stars: 39000
    npm_downloads: 600000
    total_components: 80
    styling: material
    pricing: freemium
    last_update: "2026-08-15"
  - slug: tiny-kit
    name: Tiny Kit
    description: A tiny_kit of widgets
    framework: vue
    github_stars: 40
    total_components: 5
    styling: css
    pricing: free
pages:
  - slug: about
    title: About
    content: A directory of UI component libraries.
`
